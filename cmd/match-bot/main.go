package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	appcfg "github.com/park285/rematch-discord-bot/internal/config"
	"github.com/park285/rematch-discord-bot/internal/matchbuilder"
	"github.com/park285/rematch-discord-bot/internal/obslog"
	"github.com/park285/rematch-discord-bot/internal/webhook"
	"github.com/park285/rematch-discord-bot/pkg/matchdto"
	"go.uber.org/zap"
)

func main() {
	if err := appcfg.LoadDotEnv(); err != nil {
		log.Fatalf(".env error: %v", err)
	}
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	if err := run(cfg, logger); err != nil {
		logger.Error("match_bot_exit", zap.Error(err))
		obslog.Sync()
		os.Exit(1)
	}
}

func run(cfg *appcfg.AppConfig, logger *zap.Logger) error {
	sess, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	sess.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	sess.ShouldReconnectOnError = true

	var botTag atomic.Pointer[string]
	sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		tag := r.User.String()
		botTag.Store(&tag)
		logger.Info("discord_ready", zap.String("bot", tag), zap.Int("guilds", len(r.Guilds)))
	})
	sess.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		botTag.Store(nil)
		logger.Warn("discord_disconnected")
	})
	sess.AddHandler(func(s *discordgo.Session, _ *discordgo.Resumed) {
		if s.State != nil && s.State.User != nil {
			tag := s.State.User.String()
			botTag.Store(&tag)
		}
		logger.Info("discord_resumed")
	})

	if err := sess.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("discord_close_failed", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = checkCategory(ctx, sess, cfg.GuildID, cfg.VoiceCategoryID)
	cancel()
	if err != nil {
		return err
	}

	bctx, bcancel := context.WithTimeout(context.Background(), 15*time.Second)
	deps, err := matchbuilder.New(bctx, cfg, matchbuilder.FromSession(sess, cfg.GuildID, logger.With(zap.String("component", "voice"))), logger)
	bcancel()
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("deps_close_failed", zap.Error(err))
		}
	}()

	deps.Sweeper.Start()
	if deps.Reaper != nil {
		sess.AddHandler(deps.Reaper.Handler)
		logger.Info("auto_delete_enabled", zap.Duration("delay", cfg.AutoDeleteDelay))
	}

	health := func() matchdto.HealthResponse {
		bot := "offline"
		if tag := botTag.Load(); tag != nil {
			bot = *tag
		}
		return matchdto.HealthResponse{
			Status:  "ok",
			Bot:     bot,
			Store:   cfg.StoreBackend,
			Sweeper: string(deps.Sweeper.State()),
		}
	}
	srv := webhook.New(deps.Manager, cfg.WebhookSecret,
		webhook.WithLogger(logger.With(zap.String("component", "webhook"))),
		webhook.WithMessages(deps.Catalog),
		webhook.WithHealth(health),
	)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("webhook_listening", zap.String("addr", cfg.Addr()))
		serveErr <- srv.ListenAndServe(cfg.Addr())
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown_signal", zap.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("webhook server: %w", err)
		}
	}

	sctx, scancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn("webhook_shutdown_failed", zap.Error(err))
	}
	return nil
}

// checkCategory verifies the configured parent exists and is a category.
func checkCategory(ctx context.Context, s *discordgo.Session, guildID, categoryID string) error {
	ch, err := s.Channel(categoryID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("voice category %s: %w", categoryID, err)
	}
	if ch.Type != discordgo.ChannelTypeGuildCategory {
		return errors.New("VOICE_CATEGORY_ID does not point at a category")
	}
	if ch.GuildID != guildID {
		return fmt.Errorf("voice category belongs to guild %s, not %s", ch.GuildID, guildID)
	}
	return nil
}
