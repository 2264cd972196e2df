// Package worker hosts the queue consumers of the pipeline: the
// conversion worker, the storage worker, and the merge coordinator.
// Every handler is written for at-least-once delivery; redelivering any
// task must converge to the same final state.
package worker

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ninalin0217/docsplit/pkg/logger"
	"github.com/ninalin0217/docsplit/pkg/queue"
)

type Worker interface {
	Start(ctx context.Context) error
	Stop() error
}

// Config tunes the asynq consumer server.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
	Queues        map[string]int
	RetryDelay    time.Duration
}

// PipelineWorker runs all three pipeline stages on one asynq server.
type PipelineWorker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger logger.Logger
}

func NewPipelineWorker(cfg *Config, conversion *ConversionWorker, storage *StorageWorker, merge *MergeCoordinator, log logger.Logger) *PipelineWorker {
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.Queues,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n+1) * cfg.RetryDelay
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskTypePartConvert, conversion.HandleTask)
	mux.HandleFunc(queue.TaskTypePartStore, storage.HandleTask)
	mux.HandleFunc(queue.TaskTypeJobMerge, merge.HandleTask)

	return &PipelineWorker{
		server: server,
		mux:    mux,
		logger: log.Named("worker"),
	}
}

func (w *PipelineWorker) Start(ctx context.Context) error {
	go func() {
		if err := w.server.Run(w.mux); err != nil {
			w.logger.Error("Worker server stopped", logger.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		w.Stop()
	}()

	return nil
}

func (w *PipelineWorker) Stop() error {
	w.server.Stop()
	w.server.Shutdown()
	return nil
}
