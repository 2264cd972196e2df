package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/ninalin0217/docsplit/internal/apperr"
	"github.com/ninalin0217/docsplit/internal/markdown"
	"github.com/ninalin0217/docsplit/internal/models"
	"github.com/ninalin0217/docsplit/internal/notify"
	"github.com/ninalin0217/docsplit/internal/partcache"
	"github.com/ninalin0217/docsplit/internal/tracker"
	"github.com/ninalin0217/docsplit/pkg/logger"
)

// MergeCoordinator reassembles a fully-converted document, persists the
// final markdown, and tears down the job's transient state.
type MergeCoordinator struct {
	cache    partcache.Cache
	tracker  tracker.Tracker
	markdown markdown.Store
	notifier notify.Notifier
	logger   logger.Logger
}

func NewMergeCoordinator(cache partcache.Cache, tr tracker.Tracker, md markdown.Store, notifier notify.Notifier, log logger.Logger) *MergeCoordinator {
	return &MergeCoordinator{
		cache:    cache,
		tracker:  tr,
		markdown: md,
		notifier: notifier,
		logger:   log.Named("merge"),
	}
}

func (c *MergeCoordinator) HandleTask(ctx context.Context, t *asynq.Task) error {
	var req models.MergingRequest
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		c.logger.Error("Failed to unmarshal merge request",
			logger.String("payload", string(t.Payload())),
			logger.Error(err),
		)
		return fmt.Errorf("failed to unmarshal merge request: %w", err)
	}
	return c.Merge(ctx, &req)
}

// Merge performs the reassembly. Stale triggers are dropped; an
// incomplete or unloadable part set aborts this attempt and leaves the
// job intact for redelivery.
func (c *MergeCoordinator) Merge(ctx context.Context, req *models.MergingRequest) error {
	status, err := c.tracker.JobStatus(ctx, req.DocumentID)
	if err != nil {
		if errors.Is(err, apperr.ErrJobNotFound) {
			// Redelivered after a finished merge already cleaned up.
			c.logger.Info("Dropping merge for unknown job",
				logger.String("documentId", req.DocumentID),
			)
			return nil
		}
		return err
	}
	if status != models.JobMerging {
		c.logger.Warn("Dropping stale merge trigger",
			logger.String("documentId", req.DocumentID),
			logger.String("status", string(status)),
		)
		return nil
	}

	snapshot, err := c.tracker.Snapshot(ctx, req.DocumentID)
	if err != nil {
		return err
	}
	if len(snapshot.CompletedParts) != snapshot.TotalParts {
		return fmt.Errorf("merge of %s premature: %d of %d parts complete",
			req.DocumentID, len(snapshot.CompletedParts), snapshot.TotalParts)
	}

	merged, err := c.assemble(ctx, req.DocumentID, snapshot.TotalParts)
	if err != nil {
		return err
	}

	if err := c.markdown.SaveMarkdown(ctx, req.DocumentID, merged); err != nil {
		return c.failJob(ctx, req.DocumentID, fmt.Sprintf("failed to persist merged document: %v", err))
	}

	if err := c.tracker.SetJobStatus(ctx, req.DocumentID, models.JobCompleted, 100, ""); err != nil {
		return err
	}
	if err := c.markdown.UpdateStatus(ctx, req.DocumentID, models.JobCompleted, 100, ""); err != nil {
		c.logger.Warn("Failed to persist completed status",
			logger.String("documentId", req.DocumentID),
			logger.Error(err),
		)
	}

	c.notifier.PublishJobEvent(ctx, notify.EventJobCompleted, req.DocumentID, nil)

	c.logger.Info("Document merged",
		logger.String("documentId", req.DocumentID),
		logger.Int("totalParts", snapshot.TotalParts),
		logger.Int("bytes", len(merged)),
	)

	c.cleanup(ctx, req.DocumentID)
	return nil
}

// assemble joins the cached parts, falling back to the materialized
// copies when the cache has been evicted.
func (c *MergeCoordinator) assemble(ctx context.Context, documentID string, totalParts int) (string, error) {
	merged, err := c.cache.MergeAll(ctx, documentID, totalParts)
	if err == nil {
		return merged, nil
	}
	if !apperr.IsMerge(err) {
		return "", err
	}

	c.logger.Warn("Cache incomplete, merging from materialized parts",
		logger.String("documentId", documentID),
		logger.Error(err),
	)
	parts, loadErr := c.markdown.LoadParts(ctx, documentID, totalParts)
	if loadErr != nil {
		// Neither source has every part. Leave the job in merging so a
		// redelivery can retry once the missing part shows up.
		return "", loadErr
	}
	return strings.Join(parts, partcache.PartSeparator), nil
}

// failJob marks the job terminally failed after an unrecoverable
// persistence failure.
func (c *MergeCoordinator) failJob(ctx context.Context, documentID, errMsg string) error {
	if err := c.tracker.SetJobStatus(ctx, documentID, models.JobFailed, 0, errMsg); err != nil {
		return err
	}
	if err := c.markdown.UpdateStatus(ctx, documentID, models.JobFailed, 0, errMsg); err != nil {
		c.logger.Warn("Failed to persist failed status",
			logger.String("documentId", documentID),
			logger.Error(err),
		)
	}
	c.notifier.PublishJobEvent(ctx, notify.EventJobFailed, documentID, errMsg)
	return errors.New(errMsg)
}

// cleanup tears down transient job state. Failures only log: the final
// document is already durable.
func (c *MergeCoordinator) cleanup(ctx context.Context, documentID string) {
	if err := c.cache.Cleanup(ctx, documentID); err != nil {
		c.logger.Warn("Failed to clean part cache",
			logger.String("documentId", documentID),
			logger.Error(err),
		)
	}
	if err := c.markdown.Cleanup(ctx, documentID); err != nil {
		c.logger.Warn("Failed to clean materialized parts",
			logger.String("documentId", documentID),
			logger.Error(err),
		)
	}
	if err := c.tracker.Cleanup(ctx, documentID); err != nil {
		c.logger.Warn("Failed to clean tracker state",
			logger.String("documentId", documentID),
			logger.Error(err),
		)
	}
}
