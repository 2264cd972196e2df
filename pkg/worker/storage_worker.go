package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ninalin0217/docsplit/internal/apperr"
	"github.com/ninalin0217/docsplit/internal/markdown"
	"github.com/ninalin0217/docsplit/internal/models"
	"github.com/ninalin0217/docsplit/internal/notify"
	"github.com/ninalin0217/docsplit/internal/partcache"
	"github.com/ninalin0217/docsplit/internal/tracker"
	"github.com/ninalin0217/docsplit/pkg/logger"
	"github.com/ninalin0217/docsplit/pkg/queue"
)

// StorageWorker persists converted part content and advances the job
// state machine. It is the only stage that judges content validity,
// counts retries, and decides when the document is ready to merge.
type StorageWorker struct {
	cache      partcache.Cache
	tracker    tracker.Tracker
	markdown   markdown.Store
	bus        queue.Bus
	notifier   notify.Notifier
	retryDelay time.Duration
	logger     logger.Logger
}

func NewStorageWorker(cache partcache.Cache, tr tracker.Tracker, md markdown.Store, bus queue.Bus, notifier notify.Notifier, retryDelay time.Duration, log logger.Logger) *StorageWorker {
	return &StorageWorker{
		cache:      cache,
		tracker:    tr,
		markdown:   md,
		bus:        bus,
		notifier:   notifier,
		retryDelay: retryDelay,
		logger:     log.Named("store"),
	}
}

func (w *StorageWorker) HandleTask(ctx context.Context, t *asynq.Task) error {
	var req models.PartStorageRequest
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		w.logger.Error("Failed to unmarshal storage request",
			logger.String("payload", string(t.Payload())),
			logger.Error(err),
		)
		return fmt.Errorf("failed to unmarshal storage request: %w", err)
	}
	return w.ProcessPart(ctx, &req)
}

// ProcessPart stores one part's content. Redelivering the same request
// converges: the content write is idempotent and the tracker reports job
// completion exactly once.
func (w *StorageWorker) ProcessPart(ctx context.Context, req *models.PartStorageRequest) error {
	if _, err := w.tracker.JobStatus(ctx, req.DocumentID); errors.Is(err, apperr.ErrJobNotFound) {
		w.logger.Warn("Job no longer tracked, dropping part",
			logger.String("documentId", req.DocumentID),
			logger.Int("partIndex", req.PartIndex),
		)
		return nil
	}

	if err := w.cache.StorePart(ctx, req.DocumentID, req.PartIndex, req.Content); err != nil {
		if apperr.IsValidation(err) {
			// Blank converter output is a conversion failure, routed
			// through the retry path rather than redelivered as-is.
			return w.handleFailure(ctx, req, err.Error())
		}
		return err
	}

	// Materialize the part so a merge can still happen after cache
	// eviction. Best-effort: the cache copy is authoritative.
	if err := w.markdown.SavePart(ctx, req.DocumentID, req.PartIndex, req.Content); err != nil {
		w.logger.Warn("Failed to materialize part markdown",
			logger.String("documentId", req.DocumentID),
			logger.Int("partIndex", req.PartIndex),
			logger.Error(err),
		)
	}

	jobComplete, err := w.tracker.MarkCompleted(ctx, req.DocumentID, req.PartIndex)
	if err != nil {
		// Safe to redeliver: the content write above is idempotent.
		return err
	}

	snapshot, err := w.tracker.Snapshot(ctx, req.DocumentID)
	if err != nil {
		return err
	}

	w.notifier.PublishProgress(ctx, &models.PartStorageProgress{
		DocumentID: req.DocumentID,
		PartIndex:  req.PartIndex,
		TotalParts: req.TotalParts,
		Percent:    snapshot.PercentComplete,
	})
	w.notifier.PublishPartCompleted(ctx, &models.PartStorageCompleted{
		DocumentID: req.DocumentID,
		PartIndex:  req.PartIndex,
		TotalParts: req.TotalParts,
		Status:     models.PartCompleted,
	})

	w.logger.Info("Part stored",
		logger.String("documentId", req.DocumentID),
		logger.Int("partIndex", req.PartIndex),
		logger.Float64("percent", snapshot.PercentComplete),
	)

	if !jobComplete {
		return nil
	}
	return w.triggerMerge(ctx, req.DocumentID, snapshot)
}

// triggerMerge compare-and-sets the job into merging and enqueues the
// merge task. Exactly one delivery wins the transition.
func (w *StorageWorker) triggerMerge(ctx context.Context, documentID string, snapshot *models.JobProgressSnapshot) error {
	won, err := w.tracker.TryBeginMerge(ctx, documentID)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}

	w.notifier.PublishJobEvent(ctx, notify.EventJobMerging, documentID, nil)

	err = w.bus.EnqueueMerge(ctx, &models.MergingRequest{
		DocumentID:     documentID,
		TotalParts:     snapshot.TotalParts,
		CompletedParts: snapshot.CompletedParts,
	})
	if err != nil {
		// Give the transition back so a redelivery can win it again.
		if revertErr := w.tracker.SetJobStatus(ctx, documentID, models.JobProcessing, snapshot.PercentComplete, ""); revertErr != nil {
			w.logger.Error("Failed to revert merge transition",
				logger.String("documentId", documentID),
				logger.Error(revertErr),
			)
		}
		return fmt.Errorf("failed to enqueue merge for %s: %w", documentID, err)
	}
	return nil
}

// handleFailure records one storage failure and either schedules a
// delayed reconversion or fails the whole job.
func (w *StorageWorker) handleFailure(ctx context.Context, req *models.PartStorageRequest, cause string) error {
	retryCount, canRetry, err := w.tracker.MarkFailed(ctx, req.DocumentID, req.PartIndex, cause)
	if err != nil {
		if errors.Is(err, apperr.ErrJobNotFound) {
			return nil
		}
		return err
	}

	w.notifier.PublishPartFailed(ctx, &models.PartStorageFailed{
		DocumentID: req.DocumentID,
		PartIndex:  req.PartIndex,
		TotalParts: req.TotalParts,
		Status:     models.PartFailed,
		Error:      cause,
		RetryCount: retryCount,
		MaxRetries: req.MaxRetries,
		CanRetry:   canRetry,
	})

	if canRetry {
		w.logger.Warn("Part failed, scheduling reconversion",
			logger.String("documentId", req.DocumentID),
			logger.Int("partIndex", req.PartIndex),
			logger.Int("retryCount", retryCount),
			logger.String("cause", cause),
		)
		return w.bus.EnqueuePartConversion(ctx, &models.PartConversionRequest{
			DocumentID: req.DocumentID,
			PartIndex:  req.PartIndex,
			TotalParts: req.TotalParts,
			PartKey:    models.PartObjectKey(req.DocumentID, req.PartIndex),
			Priority:   req.Priority,
			RetryCount: retryCount,
			MaxRetries: req.MaxRetries,
		}, w.retryDelay)
	}

	w.logger.Error("Part exhausted retries, failing job",
		logger.String("documentId", req.DocumentID),
		logger.Int("partIndex", req.PartIndex),
		logger.Int("retryCount", retryCount),
		logger.String("cause", cause),
	)

	errMsg := fmt.Sprintf("part %d failed after %d retries: %s", req.PartIndex, retryCount, cause)
	if err := w.tracker.SetJobStatus(ctx, req.DocumentID, models.JobFailed, 0, errMsg); err != nil {
		return err
	}
	if err := w.markdown.UpdateStatus(ctx, req.DocumentID, models.JobFailed, 0, errMsg); err != nil {
		w.logger.Warn("Failed to persist failed status",
			logger.String("documentId", req.DocumentID),
			logger.Error(err),
		)
	}
	w.notifier.PublishJobEvent(ctx, notify.EventJobFailed, req.DocumentID, errMsg)
	return nil
}
