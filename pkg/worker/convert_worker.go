package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/hibiken/asynq"

	"github.com/ninalin0217/docsplit/internal/apperr"
	"github.com/ninalin0217/docsplit/internal/converter"
	"github.com/ninalin0217/docsplit/internal/models"
	"github.com/ninalin0217/docsplit/internal/tracker"
	"github.com/ninalin0217/docsplit/pkg/logger"
	"github.com/ninalin0217/docsplit/pkg/queue"
	"github.com/ninalin0217/docsplit/pkg/storage"
)

// ConversionWorker pulls a part PDF from object storage, runs it through
// the conversion service, and forwards the markdown to the storage
// stage. RetryCount is carried through untouched; this stage counts
// nothing itself.
type ConversionWorker struct {
	storage   storage.Storage
	converter converter.Converter
	tracker   tracker.Tracker
	bus       queue.Bus
	logger    logger.Logger
}

func NewConversionWorker(st storage.Storage, conv converter.Converter, tr tracker.Tracker, bus queue.Bus, log logger.Logger) *ConversionWorker {
	return &ConversionWorker{
		storage:   st,
		converter: conv,
		tracker:   tr,
		bus:       bus,
		logger:    log.Named("convert"),
	}
}

func (w *ConversionWorker) HandleTask(ctx context.Context, t *asynq.Task) error {
	var req models.PartConversionRequest
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		w.logger.Error("Failed to unmarshal conversion request",
			logger.String("payload", string(t.Payload())),
			logger.Error(err),
		)
		return fmt.Errorf("failed to unmarshal conversion request: %w", err)
	}
	return w.ProcessPart(ctx, &req)
}

// ProcessPart converts one part. Returning an error hands the task back
// to the queue for transport-level retry; content-level failures are
// judged downstream by the storage worker.
func (w *ConversionWorker) ProcessPart(ctx context.Context, req *models.PartConversionRequest) error {
	w.logger.Info("Converting part",
		logger.String("documentId", req.DocumentID),
		logger.Int("partIndex", req.PartIndex),
		logger.Int("retryCount", req.RetryCount),
	)

	if err := w.tracker.MarkProcessing(ctx, req.DocumentID, req.PartIndex); err != nil {
		if errors.Is(err, apperr.ErrJobNotFound) {
			// Cancelled or already finished; converting for a dead job
			// is wasted work, not an error worth redelivery.
			w.logger.Warn("Part no longer tracked, dropping conversion",
				logger.String("documentId", req.DocumentID),
				logger.Int("partIndex", req.PartIndex),
			)
			return nil
		}
		return err
	}

	pdf, err := w.storage.Get(ctx, req.PartKey)
	if err != nil {
		return fmt.Errorf("failed to fetch part pdf: %w", err)
	}
	defer pdf.Close()

	markdown, err := w.converter.Convert(ctx, path.Base(req.PartKey), pdf)
	if err != nil {
		return fmt.Errorf("failed to convert part %d of %s: %w", req.PartIndex, req.DocumentID, err)
	}

	return w.bus.EnqueuePartStorage(ctx, &models.PartStorageRequest{
		DocumentID: req.DocumentID,
		PartIndex:  req.PartIndex,
		TotalParts: req.TotalParts,
		Content:    markdown,
		Priority:   req.Priority,
		RetryCount: req.RetryCount,
		MaxRetries: req.MaxRetries,
	})
}
