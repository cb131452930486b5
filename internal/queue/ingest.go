package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/contentstore/pkg/models"
)

// Runner executes one ingestion run.
type Runner interface {
	Run(ctx context.Context, inputs map[string]any, user string) ([]models.ChunkRef, error)
}

type IngestWorker struct {
	runner Runner
}

func NewIngestWorker(r Runner) *IngestWorker {
	return &IngestWorker{runner: r}
}

func (w *IngestWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload IngestRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	log.Info().Str("user", payload.User).Msg("running queued ingestion")
	refs, err := w.runner.Run(ctx, payload.Inputs, payload.User)
	if err != nil {
		log.Error().Err(err).Str("user", payload.User).Msg("queued ingestion failed")
		if errors.Is(err, models.ErrMalformedTriggerResponse) {
			return fmt.Errorf("ingest: %w: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("ingest: %w", err)
	}

	if rw := t.ResultWriter(); rw != nil {
		if b, err := json.Marshal(refs); err == nil {
			if _, err := rw.Write(b); err != nil {
				log.Warn().Err(err).Msg("could not store task result")
			}
		}
	}
	log.Info().Int("chunks", len(refs)).Msg("queued ingestion finished")
	return nil
}
