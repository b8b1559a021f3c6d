package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var allKeys = []string{
	"DISCORD_TOKEN", "GUILD_ID", "VOICE_CATEGORY_ID", "WEBHOOK_SECRET",
	"WEBHOOK_PORT", "PORT", "STORE_BACKEND", "STORE_FILE", "REDIS_URL",
	"DATABASE_URL", "SWEEP_INTERVAL", "AUTO_DELETE_ON_EMPTY", "AUTO_DELETE_DELAY",
	"MOVE_CONCURRENCY", "ORPHAN_CLEANUP", "MESSAGES_DIR",
}

func setRequired(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
	t.Setenv("DISCORD_TOKEN", "tok")
	t.Setenv("GUILD_ID", "g1")
	t.Setenv("VOICE_CATEGORY_ID", "c1")
	t.Setenv("WEBHOOK_SECRET", "s")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WebhookPort != 3001 || cfg.Addr() != ":3001" {
		t.Fatalf("port = %d", cfg.WebhookPort)
	}
	if cfg.StoreBackend != "file" || cfg.StoreFile != "match_channels.json" {
		t.Fatalf("store = %s %s", cfg.StoreBackend, cfg.StoreFile)
	}
	if cfg.SweepInterval != 5*time.Minute || cfg.AutoDeleteDelay != time.Minute {
		t.Fatalf("durations = %v %v", cfg.SweepInterval, cfg.AutoDeleteDelay)
	}
	if cfg.MoveConcurrency != 4 || cfg.AutoDeleteOnEmpty || cfg.OrphanCleanup {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadRequired(t *testing.T) {
	for _, key := range []string{"DISCORD_TOKEN", "GUILD_ID", "VOICE_CATEGORY_ID", "WEBHOOK_SECRET"} {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, "  ")
			if _, err := Load(); err == nil {
				t.Fatalf("expected error without %s", key)
			}
		})
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "8080")
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("SWEEP_INTERVAL", "30")
	t.Setenv("AUTO_DELETE_ON_EMPTY", "true")
	t.Setenv("AUTO_DELETE_DELAY", "2m")
	t.Setenv("MOVE_CONCURRENCY", "0")
	t.Setenv("ORPHAN_CLEANUP", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WebhookPort != 8080 {
		t.Fatalf("PORT fallback ignored: %d", cfg.WebhookPort)
	}
	if cfg.StoreBackend != "redis" {
		t.Fatalf("backend = %q", cfg.StoreBackend)
	}
	if cfg.SweepInterval != 30*time.Second || cfg.AutoDeleteDelay != 2*time.Minute {
		t.Fatalf("durations = %v %v", cfg.SweepInterval, cfg.AutoDeleteDelay)
	}
	if !cfg.AutoDeleteOnEmpty || !cfg.OrphanCleanup || cfg.MoveConcurrency != 4 {
		t.Fatalf("cfg = %+v", cfg)
	}

	t.Setenv("WEBHOOK_PORT", "9000")
	if cfg, _ = Load(); cfg.WebhookPort != 9000 {
		t.Fatalf("WEBHOOK_PORT should win over PORT: %d", cfg.WebhookPort)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	setRequired(t)
	t.Setenv("WEBHOOK_PORT", "http")
	if _, err := Load(); err == nil {
		t.Fatal("expected port error")
	}
	t.Setenv("WEBHOOK_PORT", "")
	t.Setenv("SWEEP_INTERVAL", "-5s")
	if _, err := Load(); err == nil {
		t.Fatal("expected interval error")
	}
}

func TestLoadDotEnv(t *testing.T) {
	setRequired(t)
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("MESSAGES_DIR=/etc/rematch\nGUILD_ID=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MESSAGES_DIR", "")
	os.Unsetenv("MESSAGES_DIR")

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MessagesDir != "/etc/rematch" {
		t.Fatalf("MessagesDir = %q", cfg.MessagesDir)
	}
	if cfg.GuildID != "g1" {
		t.Fatalf("existing env should win, got %q", cfg.GuildID)
	}
}
