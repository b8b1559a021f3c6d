package obslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warning")
	t.Setenv("LOG_FORMAT", "xml")
	t.Setenv("LOG_TO_CONSOLE", "false")
	t.Setenv("LOG_TO_FILE", "false")
	t.Setenv("LOG_FILE", "")
	t.Setenv("LOG_CALLER", "")

	o := OptionsFromEnv()
	if o.Level != zapcore.WarnLevel {
		t.Fatalf("level = %v", o.Level)
	}
	if o.Format != "legacy" || o.Console || o.File != "" {
		t.Fatalf("options = %+v", o)
	}

	t.Setenv("LOG_TO_FILE", "true")
	if o := OptionsFromEnv(); o.File != filepath.Join("logs", "match-bot.log") {
		t.Fatalf("default file = %q", o.File)
	}
}

func TestBuildWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bot.log")
	logger, err := Build(Options{Level: zapcore.InfoLevel, Format: "json", File: path})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("match_create", zap.String("match_id", "42"))
	_ = logger.Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(raw)
	if !strings.Contains(out, `"msg":"match_create"`) || !strings.Contains(out, `"match_id":"42"`) {
		t.Fatalf("log = %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug entry leaked: %s", out)
	}
}
