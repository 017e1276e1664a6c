package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/keshon/lavaplayer/internal/discord"
	"github.com/keshon/lavaplayer/internal/lavalink"
	"github.com/keshon/lavaplayer/internal/music/manager"
	"github.com/keshon/lavaplayer/internal/music/resolver"
	"github.com/keshon/lavaplayer/internal/music/sources/spotify"
	"github.com/keshon/lavaplayer/internal/music/sources/youtube"
	"github.com/keshon/lavaplayer/internal/storage"
	"github.com/keshon/lavaplayer/internal/telemetry"
	"github.com/keshon/lavaplayer/pkg/jobmgr"
)

const shutdownTimeout = 20 * time.Second

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	logger.Info().Str("environment", cfg.Environment).Msg("lavaplayer starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close recommendation store")
		}
	}()

	jobs := jobmgr.NewManager(jobmgr.LogReporter(logger))
	defer jobs.Shutdown()

	catalog := newCatalog()
	if err := catalog.Start(jobs); err != nil {
		return fmt.Errorf("start catalog token refresh: %w", err)
	}

	metrics := telemetry.New()
	if cfg.Metrics.Bind != "" {
		if err := jobs.StartAsync("metrics-server", func(ctx context.Context) error {
			return metrics.Serve(ctx, cfg.Metrics.Bind, logger)
		}); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	bot, err := discord.New(discord.Config{Token: cfg.Discord.Token, ShardCount: cfg.Discord.ShardCount}, logger)
	if err != nil {
		return fmt.Errorf("initialize discord: %w", err)
	}

	related, err := youtube.New(cfg.YouTube.APIKey, cfg.YouTube.APIURL, logger)
	if err != nil {
		return fmt.Errorf("initialize youtube: %w", err)
	}

	node := newNode(bot)
	res := resolver.New(node, catalog, related, store, logger)
	music := manager.New(manager.Options{
		IdleTimeout:   cfg.Player.IdleTimeout,
		DefaultVolume: cfg.Player.DefaultVolume,
		VolumeStep:    cfg.Player.VolumeStep,
		LiveUpdates:   cfg.Player.LiveUpdates,
	}, node, bot, res, metrics, logger)

	bot.Attach(node, music)
	if err := bot.Open(); err != nil {
		return fmt.Errorf("open discord: %w", err)
	}
	defer func() {
		if err := bot.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close discord sessions")
		}
	}()

	// the node session needs the bot user id, known once every shard is ready
	if err := bot.WaitReady(ctx); err != nil {
		logger.Info().Msg("shutdown before discord became ready")
		return nil
	}

	nodeErr := make(chan error, 1)
	go func() {
		nodeErr <- node.Run(ctx)
	}()
	go func() {
		_ = music.Run(ctx, node.Events())
	}()

	logger.Info().Int("shards", cfg.Discord.ShardCount).Msg("lavaplayer is running")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received, cleaning up")
	case err := <-nodeErr:
		if err != nil {
			logger.Error().Err(err).Msg("audio node unavailable")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	music.DisconnectAll(shutdownCtx)
	music.Wait()
	if err := node.Close(); err != nil {
		logger.Debug().Err(err).Msg("node close")
	}

	logger.Info().Msg("lavaplayer stopped")
	return nil
}

func openStore() (storage.RecommendationStore, error) {
	store, err := storage.Open(storage.Config{
		Backend:       cfg.Storage.Backend,
		Path:          cfg.Storage.Path,
		DSN:           cfg.Storage.DSN,
		RedisAddr:     cfg.Redis.Addr,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		RedisKey:      cfg.Redis.Key,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open recommendation store: %w", err)
	}
	return store, nil
}

func newCatalog() *spotify.Catalog {
	return spotify.New(spotify.Config{
		ClientID:        cfg.Spotify.ClientID,
		ClientSecret:    cfg.Spotify.ClientSecret,
		TokenURL:        cfg.Spotify.TokenURL,
		APIURL:          cfg.Spotify.APIURL,
		RefreshInterval: cfg.Spotify.TokenRefresh,
	}, logger)
}

func newNode(voice lavalink.VoiceGateway) *lavalink.Client {
	return lavalink.New(lavalink.Config{
		Host:              cfg.Lavalink.Host,
		Port:              cfg.Lavalink.Port,
		Password:          cfg.Lavalink.Password,
		Secure:            cfg.Lavalink.Secure,
		ReconnectAttempts: cfg.Lavalink.ReconnectAttempts,
		ReconnectInterval: cfg.Lavalink.ReconnectInterval,
		VoiceTimeout:      cfg.Player.VoiceConnectTimeout,
	}, voice, logger)
}
