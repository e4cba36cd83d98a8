package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/susu3304/dailytap/internal/api"
	"github.com/susu3304/dailytap/internal/config"
	"github.com/susu3304/dailytap/internal/daily"
	"github.com/susu3304/dailytap/internal/db"
	"github.com/susu3304/dailytap/internal/kv"
	"github.com/susu3304/dailytap/internal/locations"
	"github.com/susu3304/dailytap/internal/player"
	"github.com/susu3304/dailytap/internal/telemetry"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())
	logger := log.Logger

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("failed to open store")
	}
	defer closeStore()

	var catalog player.Catalog
	if c, err := locations.LoadFile(cfg.LocationsFile, logger); err != nil {
		log.Warn().Err(err).Str("file", cfg.LocationsFile).Msg("using built-in locations")
	} else {
		catalog = c
		log.Info().Strs("dates", c.Dates()).Msg("loaded locations")
	}

	sinks := telemetry.Multi{telemetry.Logger{Log: logger}}
	if cfg.DiscordWebhookURL != "" {
		discord, err := telemetry.NewDiscord(cfg.DiscordWebhookURL, logger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to set up discord webhook")
		}
		defer discord.Close()
		sinks = append(sinks, discord)
	}

	clock := daily.NewClock(cfg.Location())
	players := player.NewRegistry(store, catalog, clock, cfg.Game(),
		player.WithDevMode(cfg.DevMode),
		player.WithSink(sinks),
		player.WithLogger(logger),
	)
	defer players.Close()

	apiOpts := []api.Option{api.WithSink(sinks), api.WithLogger(logger)}
	if p, ok := store.(kv.Pinger); ok {
		apiOpts = append(apiOpts, api.WithHealthCheck(cfg.StoreBackend, p))
	}
	apiServer := api.New(cfg, players, apiOpts...)
	rollover := player.NewRolloverWorker(players, cfg.RolloverInterval, logger)

	if cfg.DevMode {
		log.Warn().Msg("DEV_MODE is on: game state is not saved")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return apiServer.Run(gctx)
	})
	g.Go(func() error {
		return rollover.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("server exited")
		return
	}
	log.Info().Msg("shutting down")
}

func openStore(ctx context.Context, cfg *config.Config) (kv.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return kv.NewMemory(), func() {}, nil

	case config.BackendSQLite:
		s, err := kv.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil

	case config.BackendRedis:
		s, err := kv.OpenRedis(ctx, cfg.RedisURL, "dailytap:")
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil

	case config.BackendPostgres:
		database, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := database.RunMigrations(ctx); err != nil {
			database.Close()
			return nil, nil, err
		}
		return database, database.Close, nil
	}
	return nil, nil, errors.New("unknown store backend " + cfg.StoreBackend)
}
