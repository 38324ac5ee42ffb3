package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"movie-catalog/internal/config"
	"movie-catalog/internal/importer"
	"movie-catalog/internal/queue"
	"movie-catalog/internal/ratelimit"
	"movie-catalog/internal/store"
)

// The importer is a one-shot producer: it walks the upstream feed, enqueues
// one ingestion job per record, and exits. Writes happen in the worker.
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

	budgetClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	budget := ratelimit.NewTokenBucket(budgetClient, cfg.FetchBudgetCapacity, cfg.FetchBudgetRefill, time.Hour)

	enqueuer := importer.NewEnqueuer(st, q, cfg.MaxAttempts)
	producer := importer.NewProducer(cfg, enqueuer, budget, log)

	if err := producer.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("import failed")
	}
}

func newLogger(cfg config.Config) zerolog.Logger {
	if cfg.Env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
