package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// DefaultIngestTimeout bounds a single queued ingestion run.
const DefaultIngestTimeout = 30 * time.Minute

// RedisOpt builds the asynq connection options shared by client and worker.
func RedisOpt(addr, password string, db int) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     addr,
		Password: password,
		DB:       db,
	}
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type Client struct {
	client enqueuer
}

func NewClient(opt asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(opt)}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueIngest schedules an ingestion run and returns its task id. Runs are
// not retried: a failed run may already have stored part of its documents.
func (c *Client) EnqueueIngest(ctx context.Context, payload IngestRunPayload) (string, error) {
	return c.enqueue(ctx, TypeIngestRun, payload, asynq.MaxRetry(0), asynq.Timeout(DefaultIngestTimeout))
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return info.ID, nil
}
