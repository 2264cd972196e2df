package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ninalin0217/docsplit/config"
	"github.com/ninalin0217/docsplit/internal/apperr"
	"github.com/ninalin0217/docsplit/internal/markdown"
	"github.com/ninalin0217/docsplit/internal/models"
	"github.com/ninalin0217/docsplit/internal/pdfsplit"
	"github.com/ninalin0217/docsplit/internal/planner"
	"github.com/ninalin0217/docsplit/internal/tracker"
	"github.com/ninalin0217/docsplit/pkg/logger"
	"github.com/ninalin0217/docsplit/pkg/queue"
	"github.com/ninalin0217/docsplit/pkg/storage"
)

type IngestService struct {
	storage  storage.Storage
	tracker  tracker.Tracker
	markdown markdown.Store
	bus      queue.Bus
	planner  *planner.Planner
	splitter pdfsplit.Splitter
	cfg      *config.PipelineConfig
	logger   logger.Logger
}

func NewService(
	st storage.Storage,
	tr tracker.Tracker,
	md markdown.Store,
	bus queue.Bus,
	pl *planner.Planner,
	sp pdfsplit.Splitter,
	cfg *config.PipelineConfig,
	log logger.Logger,
) *IngestService {
	if cfg == nil {
		cfg = config.DefaultPipelineConfig()
	}
	return &IngestService{
		storage:  st,
		tracker:  tr,
		markdown: md,
		bus:      bus,
		planner:  pl,
		splitter: sp,
		cfg:      cfg,
		logger:   log.Named("ingest"),
	}
}

func (s *IngestService) ProcessFile(ctx context.Context, file multipart.File, header *multipart.FileHeader, opts Options) (*Receipt, error) {
	if err := s.validateUpload(header); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	pageCount, err := s.splitter.PageCount(data)
	if err != nil {
		return nil, &apperr.ValidationError{Field: "file", Reason: fmt.Sprintf("not a readable pdf: %v", err)}
	}

	documentID := uuid.New().String()
	plan := s.planner.Decide(pageCount, planner.Overrides{
		Threshold: opts.SplitThreshold,
		Size:      opts.SplitSize,
	})

	s.logger.Info("Ingesting document",
		logger.String("documentId", documentID),
		logger.String("filename", header.Filename),
		logger.Int("pageCount", pageCount),
		logger.Int("totalParts", plan.TotalParts),
		logger.Bool("split", plan.ShouldSplit),
	)

	sourceKey := models.SourceObjectKey(documentID)
	if _, err := s.storage.Store(ctx, bytes.NewReader(data), sourceKey); err != nil {
		return nil, fmt.Errorf("failed to store source pdf: %w", err)
	}

	if err := s.tracker.Initialize(ctx, documentID, plan.TotalParts, s.cfg.MaxRetries); err != nil {
		return nil, err
	}
	if err := s.tracker.SetJobStatus(ctx, documentID, models.JobSplitting, 0, ""); err != nil {
		return nil, err
	}
	if err := s.markdown.UpdateStatus(ctx, documentID, models.JobSplitting, 0, ""); err != nil {
		s.logger.Warn("Failed to persist splitting status",
			logger.String("documentId", documentID),
			logger.Error(err),
		)
	}

	parts, err := s.splitParts(ctx, data, plan)
	if err != nil {
		return nil, s.failIngest(ctx, documentID, fmt.Sprintf("failed to split pdf: %v", err))
	}

	manifest, err := s.uploadParts(ctx, documentID, header.Filename, sourceKey, pageCount, plan, parts)
	if err != nil {
		return nil, s.failIngest(ctx, documentID, fmt.Sprintf("failed to upload parts: %v", err))
	}

	if err := s.markdown.SaveManifest(ctx, manifest); err != nil {
		s.logger.Warn("Failed to save manifest",
			logger.String("documentId", documentID),
			logger.Error(err),
		)
	}

	if err := s.tracker.SetJobStatus(ctx, documentID, models.JobProcessing, 0, ""); err != nil {
		return nil, err
	}
	if err := s.markdown.UpdateStatus(ctx, documentID, models.JobProcessing, 0, ""); err != nil {
		s.logger.Warn("Failed to persist processing status",
			logger.String("documentId", documentID),
			logger.Error(err),
		)
	}

	if err := s.enqueueConversions(ctx, documentID, plan.TotalParts, opts.Priority); err != nil {
		return nil, s.failIngest(ctx, documentID, fmt.Sprintf("failed to enqueue conversions: %v", err))
	}

	return &Receipt{
		DocumentID: documentID,
		Filename:   header.Filename,
		PageCount:  pageCount,
		TotalParts: plan.TotalParts,
		Split:      plan.ShouldSplit,
		Status:     models.JobProcessing,
		CreatedAt:  time.Now(),
	}, nil
}

func (s *IngestService) Status(ctx context.Context, documentID string) (*models.JobProgressSnapshot, error) {
	snapshot, err := s.tracker.Snapshot(ctx, documentID)
	if err == nil {
		return snapshot, nil
	}
	if !errors.Is(err, apperr.ErrJobNotFound) {
		return nil, err
	}

	// Tracking state is gone once a job finishes; the durable record
	// still answers.
	record, recordErr := s.markdown.GetStatus(ctx, documentID)
	if recordErr != nil {
		return nil, apperr.ErrJobNotFound
	}
	return &models.JobProgressSnapshot{
		DocumentID:      documentID,
		Status:          record.Status,
		PercentComplete: record.Progress,
		Error:           record.Error,
	}, nil
}

func (s *IngestService) Markdown(ctx context.Context, documentID string) (string, error) {
	return s.markdown.GetMarkdown(ctx, documentID)
}

func (s *IngestService) Manifest(ctx context.Context, documentID string) (*models.DocumentManifest, error) {
	return s.markdown.GetManifest(ctx, documentID)
}

func (s *IngestService) Cancel(ctx context.Context, documentID string) error {
	status, err := s.tracker.JobStatus(ctx, documentID)
	if err != nil {
		return err
	}
	if status == models.JobCompleted || status == models.JobFailed {
		return &apperr.ValidationError{Field: "documentId", Reason: "job already finished"}
	}

	if err := s.markdown.UpdateStatus(ctx, documentID, models.JobFailed, 0, "cancelled"); err != nil {
		s.logger.Warn("Failed to persist cancelled status",
			logger.String("documentId", documentID),
			logger.Error(err),
		)
	}
	// Dropping the tracking state makes the workers discard any part
	// message still in flight for this document.
	if err := s.tracker.Cleanup(ctx, documentID); err != nil {
		return err
	}

	s.logger.Info("Job cancelled", logger.String("documentId", documentID))
	return nil
}

func (s *IngestService) CleanupExpired(ctx context.Context, retention time.Duration) error {
	threshold := time.Now().Add(-retention)
	if err := s.storage.CleanupBefore(ctx, threshold); err != nil {
		return fmt.Errorf("failed to clean expired objects: %w", err)
	}
	s.logger.Info("Expired objects cleaned", logger.Time("threshold", threshold))
	return nil
}

func (s *IngestService) validateUpload(header *multipart.FileHeader) error {
	if header.Size <= 0 {
		return &apperr.ValidationError{Field: "file", Reason: "must not be empty"}
	}
	if header.Size > s.cfg.MaxUploadSize {
		return &apperr.ValidationError{
			Field:  "file",
			Reason: fmt.Sprintf("exceeds maximum size of %d bytes", s.cfg.MaxUploadSize),
		}
	}
	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != ".pdf" {
		return &apperr.ValidationError{Field: "file", Reason: fmt.Sprintf("unsupported type %q", ext)}
	}
	return nil
}

// splitParts returns one PDF per planned part. An unsplit document is
// passed through untouched.
func (s *IngestService) splitParts(ctx context.Context, data []byte, plan planner.Plan) ([][]byte, error) {
	if !plan.ShouldSplit {
		return [][]byte{data}, nil
	}
	return s.splitter.Split(ctx, data, plan.Ranges)
}

func (s *IngestService) uploadParts(ctx context.Context, documentID, filename, sourceKey string, pageCount int, plan planner.Plan, parts [][]byte) (*models.DocumentManifest, error) {
	manifest := &models.DocumentManifest{
		DocumentID: documentID,
		SourceKey:  sourceKey,
		Filename:   filename,
		PageCount:  pageCount,
		TotalParts: plan.TotalParts,
		Parts:      make([]models.ManifestPart, plan.TotalParts),
		CreatedAt:  time.Now(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.UploadWorkers)
	for i := range parts {
		i := i
		key := models.PartObjectKey(documentID, i)
		manifest.Parts[i] = models.ManifestPart{
			PartIndex: i,
			PageRange: plan.Ranges[i],
			ObjectKey: key,
		}
		g.Go(func() error {
			if _, err := s.storage.Store(gctx, bytes.NewReader(parts[i]), key); err != nil {
				return fmt.Errorf("part %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return manifest, nil
}

func (s *IngestService) enqueueConversions(ctx context.Context, documentID string, totalParts, priority int) error {
	for i := 0; i < totalParts; i++ {
		req := &models.PartConversionRequest{
			DocumentID: documentID,
			PartIndex:  i,
			TotalParts: totalParts,
			PartKey:    models.PartObjectKey(documentID, i),
			Priority:   priority,
			RetryCount: 0,
			MaxRetries: s.cfg.MaxRetries,
		}
		if err := s.bus.EnqueuePartConversion(ctx, req, 0); err != nil {
			return fmt.Errorf("part %d: %w", i, err)
		}
	}
	return nil
}

// failIngest marks the job failed before the conversion stage ever ran.
func (s *IngestService) failIngest(ctx context.Context, documentID, errMsg string) error {
	if err := s.tracker.SetJobStatus(ctx, documentID, models.JobFailed, 0, errMsg); err != nil {
		s.logger.Error("Failed to record ingest failure",
			logger.String("documentId", documentID),
			logger.Error(err),
		)
	}
	if err := s.markdown.UpdateStatus(ctx, documentID, models.JobFailed, 0, errMsg); err != nil {
		s.logger.Warn("Failed to persist failed status",
			logger.String("documentId", documentID),
			logger.Error(err),
		)
	}
	return errors.New(errMsg)
}
