package main

import (
	"context"
	stdlog "log"
	"os"

	"github.com/hibiken/asynq"
	"github.com/seanblong/contentstore/internal/app"
	"github.com/seanblong/contentstore/internal/config"
	"github.com/seanblong/contentstore/internal/queue"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("contentstore-worker", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	logger, err := app.NewLogger(cfg.LogLevel, os.Stdout)
	if err != nil {
		stdlog.Fatal(err)
	}
	if cfg.Redis.Addr == "" {
		logger.Fatal().Msg("redis address is required to run the worker")
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize")
	}
	defer a.Close()

	srv := asynq.NewServer(
		queue.RedisOpt(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB),
		asynq.Config{
			Concurrency: cfg.Queue.Concurrency,
			Logger:      queue.NewLogger(logger),
		},
	)

	registry := queue.NewHandlersRegistry()
	registry.Register(queue.TypeIngestRun, queue.NewIngestWorker(a.Ingest))

	logger.Info().Int("concurrency", cfg.Queue.Concurrency).Str("redis", cfg.Redis.Addr).Msg("starting worker")
	if err := srv.Run(registry.Mux()); err != nil {
		logger.Error().Err(err).Msg("worker error")
		os.Exit(1)
	}
}
