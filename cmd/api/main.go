package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"benchboard/internal/archive"
	"benchboard/internal/broadcast"
	"benchboard/internal/cache"
	"benchboard/internal/config"
	"benchboard/internal/controller"
	"benchboard/internal/rabbitmq"
	"benchboard/internal/server"
	"benchboard/internal/store"
)

func main() {
	configPath := "config/config.json"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.Logging)
	log.Info().Str("app", cfg.AppName).Str("env", cfg.Env).Msg("Starting BenchBoard server")

	st, err := store.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize report store")
	}

	var snapshotCache cache.SnapshotCache
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Redis cache")
		}
		defer redisCache.Close()
		snapshotCache = redisCache
	}

	var firehose rabbitmq.Publisher
	if cfg.RabbitMQ.Enabled {
		firehose, err = rabbitmq.NewPublisherFromConfig(cfg.RabbitMQ)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize RabbitMQ firehose")
		}
		defer firehose.Close()
	}

	var archiver archive.Archiver
	if cfg.S3.Enabled {
		archiver, err = archive.NewS3Archiver(cfg.S3)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize S3 archive")
		}
	}

	staleness := time.Duration(cfg.Dashboard.StalenessSeconds) * time.Second

	marks := controller.NewBestTracker()
	marks.Seed(context.Background(), st)

	teamController := controller.NewTeamController(st, snapshotCache, marks, staleness)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := broadcast.NewHub(func() [][]byte {
		return teamController.Snapshots(context.Background())
	})
	go hub.Run(ctx)

	rc := controller.NewReportController(st, snapshotCache, hub, firehose, archiver, marks, staleness)
	sc := controller.NewServer(st, snapshotCache, firehose)

	if cfg.Dashboard.SweepSeconds > 0 {
		go runActivitySweep(ctx, teamController, time.Duration(cfg.Dashboard.SweepSeconds)*time.Second)
	}

	srv := server.New(cfg, sc, rc, teamController, hub)

	go func() {
		log.Info().Int("port", cfg.Port).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := st.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Store shutdown failed")
	}
}

func runActivitySweep(ctx context.Context, teamController *controller.TeamController, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			teamController.SweepActivity(ctx)
		}
	}
}

func setupLogger(cfg config.LoggingConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
}
