package obslog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 간단 전역 로거. 콘솔+파일 동시 출력 지원.
var globalLogger = zap.NewNop()

// L는 전역 로거를 반환.
func L() *zap.Logger { return globalLogger }

// Named는 component 필드가 붙은 하위 로거를 반환.
func Named(component string) *zap.Logger {
	return globalLogger.With(zap.String("component", component))
}

// Sync는 버퍼된 로그를 flush.
func Sync() { _ = globalLogger.Sync() }

type Options struct {
	Level   zapcore.Level
	Format  string // legacy | json | console
	Console bool
	File    string // empty disables the file sink
	Caller  bool
}

// OptionsFromEnv reads LOG_LEVEL, LOG_FORMAT, LOG_TO_CONSOLE, LOG_TO_FILE,
// LOG_FILE and LOG_CALLER.
func OptionsFromEnv() Options {
	o := Options{
		Level:   parseLevel(getenvDefault("LOG_LEVEL", "info")),
		Format:  strings.ToLower(strings.TrimSpace(getenvDefault("LOG_FORMAT", "legacy"))),
		Console: strings.EqualFold(getenvDefault("LOG_TO_CONSOLE", "true"), "true"),
		Caller:  strings.EqualFold(getenvDefault("LOG_CALLER", "false"), "true"),
	}
	if o.Format != "legacy" && o.Format != "json" && o.Format != "console" {
		o.Format = "legacy"
	}
	if strings.EqualFold(getenvDefault("LOG_TO_FILE", "true"), "true") {
		o.File = strings.TrimSpace(getenvDefault("LOG_FILE", filepath.Join("logs", "match-bot.log")))
	}
	return o
}

// InitFromEnv는 환경설정으로 zap 로거를 초기화.
func InitFromEnv() error { return Init(OptionsFromEnv()) }

// Init은 전역 로거를 교체.
func Init(o Options) error {
	logger, err := Build(o)
	if err != nil {
		return err
	}
	globalLogger = logger
	return nil
}

// Build는 전역 로거를 건드리지 않고 로거만 생성.
func Build(o Options) (*zap.Logger, error) {
	var cores []zapcore.Core
	if o.Console {
		cores = append(cores, zapcore.NewCore(encoderFor(o.Format), zapcore.AddSync(os.Stdout), o.Level))
	}
	if o.File != "" {
		if err := ensureDir(filepath.Dir(o.File)); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(o.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(encoderFor(o.Format), zapcore.AddSync(f), o.Level))
	}
	if len(cores) == 0 {
		enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(os.Stdout), o.Level))
	}

	logger := zap.New(zapcore.NewTee(cores...))
	if o.Caller || o.Format == "legacy" {
		logger = logger.WithOptions(zap.AddCaller())
	}
	return logger.WithOptions(zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func encoderFor(format string) zapcore.Encoder {
	switch format {
	case "json":
		return zapcore.NewJSONEncoder(jsonEncoderConfig())
	case "console":
		return zapcore.NewConsoleEncoder(consoleEncoderConfig())
	default:
		return zapcore.NewConsoleEncoder(legacyEncoderConfig())
	}
}

func ensureDir(dir string) error {
	if strings.TrimSpace(dir) == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func parseLevel(s string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(s))
	if err != nil {
		if strings.EqualFold(strings.TrimSpace(s), "warning") {
			return zapcore.WarnLevel
		}
		return zapcore.InfoLevel
	}
	return lvl
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// 인코더 설정들
func legacyEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.ConsoleSeparator = " | "
	return cfg
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}

func jsonEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	return cfg
}
