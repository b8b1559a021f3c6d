package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	DiscordToken    string
	GuildID         string
	VoiceCategoryID string

	WebhookSecret string
	WebhookPort   int

	StoreBackend string
	StoreFile    string
	RedisURL     string
	DatabaseURL  string

	SweepInterval time.Duration

	AutoDeleteOnEmpty bool
	AutoDeleteDelay   time.Duration

	MoveConcurrency int
	OrphanCleanup   bool

	MessagesDir string
}

// Addr is the webhook listen address.
func (c *AppConfig) Addr() string { return ":" + strconv.Itoa(c.WebhookPort) }

// LoadDotEnv reads .env into the process environment when the file exists.
// Variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return err
		}
	}
	return nil
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		WebhookPort:     3001,
		StoreBackend:    "file",
		StoreFile:       "match_channels.json",
		SweepInterval:   5 * time.Minute,
		AutoDeleteDelay: 60 * time.Second,
		MoveConcurrency: 4,
	}

	cfg.DiscordToken = strings.TrimSpace(os.Getenv("DISCORD_TOKEN"))
	cfg.GuildID = strings.TrimSpace(os.Getenv("GUILD_ID"))
	cfg.VoiceCategoryID = strings.TrimSpace(os.Getenv("VOICE_CATEGORY_ID"))
	cfg.WebhookSecret = strings.TrimSpace(os.Getenv("WEBHOOK_SECRET"))

	port := strings.TrimSpace(os.Getenv("WEBHOOK_PORT"))
	if port == "" {
		port = strings.TrimSpace(os.Getenv("PORT"))
	}
	if port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n <= 0 || n > 65535 {
			return nil, errors.New("WEBHOOK_PORT must be a valid TCP port")
		}
		cfg.WebhookPort = n
	}

	if v := strings.ToLower(strings.TrimSpace(os.Getenv("STORE_BACKEND"))); v != "" {
		cfg.StoreBackend = v
	}
	if v := strings.TrimSpace(os.Getenv("STORE_FILE")); v != "" {
		cfg.StoreFile = v
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("SWEEP_INTERVAL")); v != "" {
		d, ok := parseDuration(v)
		if !ok {
			return nil, errors.New("SWEEP_INTERVAL must be a positive duration")
		}
		cfg.SweepInterval = d
	}
	if v := strings.TrimSpace(os.Getenv("AUTO_DELETE_ON_EMPTY")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AutoDeleteOnEmpty = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("AUTO_DELETE_DELAY")); v != "" {
		if d, ok := parseDuration(v); ok {
			cfg.AutoDeleteDelay = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("MOVE_CONCURRENCY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MoveConcurrency = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ORPHAN_CLEANUP")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.OrphanCleanup = b
		}
	}
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	if cfg.DiscordToken == "" {
		return nil, errors.New("DISCORD_TOKEN is required")
	}
	if cfg.GuildID == "" {
		return nil, errors.New("GUILD_ID is required")
	}
	if cfg.VoiceCategoryID == "" {
		return nil, errors.New("VOICE_CATEGORY_ID is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.New("WEBHOOK_SECRET is required")
	}

	return cfg, nil
}

// parseDuration accepts Go durations ("90s") or bare seconds ("90").
func parseDuration(v string) (time.Duration, bool) {
	if n, err := strconv.Atoi(v); err == nil {
		if n <= 0 {
			return 0, false
		}
		return time.Duration(n) * time.Second, true
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}
