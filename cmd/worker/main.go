package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"movie-catalog/internal/config"
	"movie-catalog/internal/importer"
	"movie-catalog/internal/models"
	"movie-catalog/internal/queue"
	"movie-catalog/internal/store"
	"movie-catalog/internal/telemetry"
	"movie-catalog/internal/worker"
)

func main() {
	cfg := config.Load()
	log := newLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatal().Err(err).Msg("migrations")
	}

	q := queue.NewRedisQueue(cfg)

	workerID := os.Getenv("WORKER_ID")
	if workerID == "" {
		hostname, _ := os.Hostname()
		if hostname != "" {
			workerID = hostname
		} else {
			workerID = fmt.Sprintf("worker-%d", os.Getpid())
		}
	}

	processor := worker.NewProcessor(cfg, q, st, workerID, log)

	thumbs := importer.NewEnqueuer(st, q, cfg.MaxAttempts)
	processor.RegisterHandler(models.JobTypeMovieUpsert, worker.NewUpsertHandler(st, thumbs, log).Handle)

	posterHandler, err := worker.NewPosterHandler(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init poster handler")
	}
	processor.RegisterHandler(models.JobTypePosterThumbnail, posterHandler.Handle)

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Warn().Err(err).Msg("metrics server stopped")
		}
	}()

	log.Info().Str("worker_id", workerID).Dur("visibility", cfg.VisibilityTimeout).Msg("worker started")
	if err := processor.Run(ctx); err != nil {
		log.Info().Err(err).Msg("worker stopped")
	}
}

func newLogger(cfg config.Config) zerolog.Logger {
	if cfg.Env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
