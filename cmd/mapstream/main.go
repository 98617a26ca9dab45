package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mapstream/mapstream/internal/api"
	"github.com/mapstream/mapstream/internal/config"
	"github.com/mapstream/mapstream/internal/database"
	"github.com/mapstream/mapstream/internal/logger"
	"github.com/mapstream/mapstream/internal/scheduler"
	"github.com/mapstream/mapstream/internal/websocket"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	streamer := logger.NewStreamer(0)
	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
		Streamer:   streamer,
	})
	defer log.Close()

	log.Info().
		Str("version", config.Version).
		Str("logLevel", cfg.Logging.Level).
		Msg("starting MapStream")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	log.Info().Msg("running database migrations")
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	hub := websocket.NewHub()
	go hub.Run()
	streamer.SetHub(hub)

	server := api.NewServer(db.Conn(), hub, cfg, log.Logger)

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}

	err = sched.RegisterTask(scheduler.TaskConfig{
		ID:         "catalog-refresh",
		Name:       "Catalog refresh",
		Cron:       cfg.Catalog.RefreshCron,
		RunOnStart: true,
		Func: func(ctx context.Context) error {
			result, err := server.Catalog().Refresh(ctx)
			if err != nil {
				return err
			}
			if result.Changed {
				// Warm the thumbnail cache for any new maps.
				names, err := server.Catalog().Names(ctx)
				if err != nil {
					return err
				}
				server.Prefetch().Start(names)
			}
			return nil
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register catalog refresh task")
	}
	server.AttachScheduler(sched)
	sched.Start()

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	if err := sched.Stop(); err != nil {
		log.Warn().Err(err).Msg("scheduler shutdown error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
}
