// Package ingest is the front door of the pipeline: it validates an
// uploaded PDF, decides the partition, splits and uploads the parts, and
// seeds the conversion queue.
package ingest

import (
	"context"
	"mime/multipart"
	"time"

	"github.com/ninalin0217/docsplit/internal/models"
)

// Options are per-upload tuning knobs. Zero values fall back to the
// pipeline defaults.
type Options struct {
	Priority       int
	SplitThreshold int
	SplitSize      int
}

// Receipt is returned to the caller once the job is queued.
type Receipt struct {
	DocumentID string           `json:"documentId"`
	Filename   string           `json:"filename"`
	PageCount  int              `json:"pageCount"`
	TotalParts int              `json:"totalParts"`
	Split      bool             `json:"split"`
	Status     models.JobStatus `json:"status"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// Service is the ingest and query surface exposed to the API layer.
type Service interface {
	// ProcessFile ingests one PDF and queues its parts for conversion.
	ProcessFile(ctx context.Context, file multipart.File, header *multipart.FileHeader, opts Options) (*Receipt, error)

	// Status reports job progress. Finished jobs whose tracking state is
	// already cleaned up are answered from the durable status record.
	Status(ctx context.Context, documentID string) (*models.JobProgressSnapshot, error)

	// Markdown returns the final merged document.
	Markdown(ctx context.Context, documentID string) (string, error)

	// Manifest returns the partition record written at ingest time.
	Manifest(ctx context.Context, documentID string) (*models.DocumentManifest, error)

	// Cancel abandons an in-flight job. In-flight part messages are
	// dropped by the workers once the tracking state is gone.
	Cancel(ctx context.Context, documentID string) error

	// CleanupExpired deletes stored objects older than the retention
	// window.
	CleanupExpired(ctx context.Context, retention time.Duration) error
}
