package matchbuilder

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/park285/rematch-discord-bot/internal/config"
	"github.com/park285/rematch-discord-bot/internal/matchlife"
	"github.com/park285/rematch-discord-bot/internal/matchstore"
	"github.com/park285/rematch-discord-bot/internal/msgcat"
	"github.com/park285/rematch-discord-bot/internal/voice"
	"go.uber.org/zap"
)

type Deps struct {
	Store       matchstore.Store
	Catalog     *msgcat.Catalog
	Provisioner voice.Provisioner
	Manager     *matchlife.Manager
	Sweeper     *matchlife.Sweeper
	Reaper      *voice.Reaper // nil unless auto-delete is enabled
}

// Discord bundles the guild-facing collaborators.
type Discord struct {
	Provisioner voice.Provisioner
	View        voice.GuildView
}

// FromSession wires the Discord collaborators to a live session.
func FromSession(s *discordgo.Session, guildID string, logger *zap.Logger) Discord {
	return Discord{
		Provisioner: voice.NewDiscordProvisioner(s, guildID, logger),
		View:        voice.NewStateView(s.State),
	}
}

func New(ctx context.Context, cfg *config.AppConfig, dc Discord, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if dc.Provisioner == nil {
		return nil, errors.New("nil provisioner")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	store, err := matchstore.Open(ctx, matchstore.Options{
		Backend:     cfg.StoreBackend,
		FilePath:    cfg.StoreFile,
		RedisURL:    cfg.RedisURL,
		DatabaseURL: cfg.DatabaseURL,
	}, logger.With(zap.String("component", "matchstore")))
	if err != nil {
		return nil, fmt.Errorf("open match store: %w", err)
	}

	mgr := matchlife.NewManager(store, dc.Provisioner, cat, cfg.VoiceCategoryID,
		matchlife.WithLogger(logger.With(zap.String("component", "matchlife"))),
		matchlife.WithMoveConcurrency(cfg.MoveConcurrency),
		matchlife.WithOrphanCleanup(cfg.OrphanCleanup),
	)
	sweeper := matchlife.NewSweeper(mgr, mgr, cfg.SweepInterval,
		matchlife.WithSweepLogger(logger.With(zap.String("component", "sweeper"))),
	)

	deps := &Deps{
		Store:       store,
		Catalog:     cat,
		Provisioner: dc.Provisioner,
		Manager:     mgr,
		Sweeper:     sweeper,
	}
	if cfg.AutoDeleteOnEmpty {
		if dc.View == nil {
			_ = store.Close()
			return nil, errors.New("auto-delete needs a guild view")
		}
		deps.Reaper = voice.NewReaper(dc.Provisioner, dc.View, cfg.GuildID, cfg.VoiceCategoryID,
			cat.ChannelPrefix(), cfg.AutoDeleteDelay, logger.With(zap.String("component", "reaper")))
	}
	return deps, nil
}

// Close stops background work and releases the store.
func (d *Deps) Close() error {
	if d.Reaper != nil {
		d.Reaper.Stop()
	}
	d.Sweeper.Stop()
	return d.Store.Close()
}
