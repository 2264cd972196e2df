// Package queue wraps the asynq task queue behind typed enqueue
// operations. Delivery is at-least-once: a task acked late or a
// redelivered duplicate must be tolerated by every handler.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ninalin0217/docsplit/internal/models"
)

// Task type names routed through the worker mux.
const (
	TaskTypePartConvert = "part:convert"
	TaskTypePartStore   = "part:store"
	TaskTypeJobMerge    = "job:merge"
)

// Bus is the producer side of the task queue.
type Bus interface {
	// EnqueuePartConversion sends a part to the conversion stage. A
	// non-zero delay holds the task in the delay queue first, which is
	// how failed parts wait out their retry backoff.
	EnqueuePartConversion(ctx context.Context, req *models.PartConversionRequest, delay time.Duration) error

	// EnqueuePartStorage hands converted content to the storage stage.
	EnqueuePartStorage(ctx context.Context, req *models.PartStorageRequest) error

	// EnqueueMerge triggers reassembly. Merge tasks are deduplicated per
	// document while one is still pending or in flight.
	EnqueueMerge(ctx context.Context, req *models.MergingRequest) error

	Close() error
}

// Config tunes the asynq client and server halves of the queue.
type Config struct {
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	MaxRetries     int
	RetryDelay     time.Duration
	ProcessTimeout time.Duration
	Concurrency    int
	Queues         map[string]int
}

// AsynqBus implements Bus on asynq.
type AsynqBus struct {
	client *asynq.Client
	cfg    *Config
}

func NewAsynqBus(cfg *Config) *AsynqBus {
	return &AsynqBus{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}),
		cfg: cfg,
	}
}

// RedisOpt returns the connection options shared with the worker server.
func (b *AsynqBus) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     b.cfg.RedisAddr,
		Password: b.cfg.RedisPassword,
		DB:       b.cfg.RedisDB,
	}
}

func (b *AsynqBus) EnqueuePartConversion(ctx context.Context, req *models.PartConversionRequest, delay time.Duration) error {
	opts := []asynq.Option{
		asynq.MaxRetry(b.cfg.MaxRetries),
		asynq.Timeout(b.cfg.ProcessTimeout),
		queueFor(req.Priority),
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}
	return b.enqueue(ctx, TaskTypePartConvert, req, opts...)
}

func (b *AsynqBus) EnqueuePartStorage(ctx context.Context, req *models.PartStorageRequest) error {
	opts := []asynq.Option{
		asynq.MaxRetry(b.cfg.MaxRetries),
		asynq.Timeout(b.cfg.ProcessTimeout),
		queueFor(req.Priority),
	}
	return b.enqueue(ctx, TaskTypePartStore, req, opts...)
}

func (b *AsynqBus) EnqueueMerge(ctx context.Context, req *models.MergingRequest) error {
	// One pending merge per document. Concurrent completion races that
	// both try to enqueue collapse to a single task; the coordinator's
	// compare-and-set covers anything that slips past.
	opts := []asynq.Option{
		asynq.MaxRetry(b.cfg.MaxRetries),
		asynq.Timeout(b.cfg.ProcessTimeout),
		asynq.Queue("critical"),
		asynq.TaskID("merge:" + req.DocumentID),
	}
	err := b.enqueue(ctx, TaskTypeJobMerge, req, opts...)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

func (b *AsynqBus) Close() error {
	return b.client.Close()
}

func (b *AsynqBus) enqueue(ctx context.Context, taskType string, payload interface{}, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", taskType, err)
	}
	task := asynq.NewTask(taskType, data, opts...)
	if _, err := b.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", taskType, err)
	}
	return nil
}

func queueFor(priority int) asynq.Option {
	switch priority {
	case 1:
		return asynq.Queue("critical")
	case 2:
		return asynq.Queue("default")
	default:
		return asynq.Queue("low")
	}
}
