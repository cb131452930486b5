package main

import (
	"context"
	"encoding/json"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/seanblong/contentstore/internal/app"
	"github.com/seanblong/contentstore/internal/config"
	"github.com/seanblong/contentstore/internal/trigger"
	"github.com/seanblong/contentstore/pkg/models"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("contentstore-ingest", pflag.ExitOnError)
	dir := fs.String("dir", "", "Ingest text and markdown files under this directory instead of running the workflow")
	inputs := fs.String("inputs", "{}", "Workflow inputs as a JSON object")
	user := fs.String("user", "contentstore-cli", "User identifier sent with the workflow run")

	cfg, err := config.Load("", fs)
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	// stdout carries the chunk refs
	logger, err := app.NewLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		stdlog.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize")
	}
	defer a.Close()

	start := time.Now()
	var refs []models.ChunkRef
	if *dir != "" {
		docs, derr := trigger.NewDirSource(*dir).Documents(ctx)
		if derr != nil {
			logger.Fatal().Err(derr).Str("dir", *dir).Msg("failed to read directory")
		}
		logger.Info().Str("dir", *dir).Int("documents", len(docs)).Msg("ingesting directory")
		refs, err = a.Ingest.Ingest(ctx, docs)
	} else {
		var in map[string]any
		if jerr := json.Unmarshal([]byte(*inputs), &in); jerr != nil {
			logger.Fatal().Err(jerr).Msg("--inputs must be a JSON object")
		}
		refs, err = a.Ingest.Run(ctx, in, *user)
	}
	if err != nil {
		logger.Error().Err(err).Int("chunks", len(refs)).Msg("ingestion failed")
		_ = a.Close()
		os.Exit(1)
	}

	logger.Info().Int("chunks", len(refs)).Dur("took", time.Since(start)).Msg("ingestion finished")
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(refs); err != nil {
		logger.Error().Err(err).Msg("failed to write refs")
	}
}
