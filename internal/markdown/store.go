// Package markdown is the document-metadata collaborator: it persists
// the final merged markdown, a materialized per-part copy used as the
// merge fallback when the content cache has been evicted, the ingest
// manifest, and a small status record that outlives tracker cleanup.
package markdown

import (
	"context"
	"errors"
	"time"

	"github.com/ninalin0217/docsplit/internal/models"
)

// ErrNotFound reports a missing document or part.
var ErrNotFound = errors.New("markdown not found")

// DocumentStatus is the durable job status record. It survives tracker
// cleanup, so finished jobs stay queryable.
type DocumentStatus struct {
	DocumentID string           `json:"documentId"`
	Status     models.JobStatus `json:"status"`
	Progress   float64          `json:"progress"`
	Error      string           `json:"error,omitempty"`
	UpdatedAt  time.Time        `json:"updatedAt"`
	FinishedAt time.Time        `json:"finishedAt,omitempty"`
}

// Store is the metadata collaborator contract, storage-backend-agnostic.
type Store interface {
	// SaveMarkdown persists the final merged document.
	SaveMarkdown(ctx context.Context, documentID, text string) error
	// GetMarkdown returns the final merged document, or ErrNotFound.
	GetMarkdown(ctx context.Context, documentID string) (string, error)

	// SavePart materializes one part's markdown. Written best-effort by
	// the storage worker so a merge can be re-derived after cache
	// eviction.
	SavePart(ctx context.Context, documentID string, partIndex int, text string) error
	// LoadParts returns all part markdowns ascending by index; a gap in
	// 0..totalParts-1 yields a MergeError.
	LoadParts(ctx context.Context, documentID string, totalParts int) ([]string, error)

	// UpdateStatus writes the durable status record.
	UpdateStatus(ctx context.Context, documentID string, status models.JobStatus, progress float64, errMsg string) error
	// GetStatus reads the durable status record, or ErrNotFound.
	GetStatus(ctx context.Context, documentID string) (*DocumentStatus, error)

	// SaveManifest records how the document was partitioned.
	SaveManifest(ctx context.Context, manifest *models.DocumentManifest) error
	// GetManifest reads the partition record, or ErrNotFound.
	GetManifest(ctx context.Context, documentID string) (*models.DocumentManifest, error)

	// Cleanup removes the materialized parts for a document. The final
	// markdown, manifest, and status record are kept.
	Cleanup(ctx context.Context, documentID string) error
}
