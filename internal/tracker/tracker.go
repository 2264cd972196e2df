// Package tracker records per-part conversion status for each document
// and derives job completion. All mutations for one document are
// linearizable: two concurrent completions can never both observe a
// stale completed-count, so the completion signal fires exactly once.
package tracker

import (
	"context"

	"github.com/ninalin0217/docsplit/internal/models"
)

// Tracker is the per-document part state machine.
type Tracker interface {
	// Initialize creates totalParts pending parts for the document.
	// Calling it again with the same totalParts is a no-op; a different
	// totalParts yields a JobInconsistencyError.
	Initialize(ctx context.Context, documentID string, totalParts, maxRetries int) error

	// MarkProcessing flags one part as in flight.
	MarkProcessing(ctx context.Context, documentID string, partIndex int) error

	// MarkCompleted records the part as completed and atomically reports
	// whether every part of the job is now complete.
	MarkCompleted(ctx context.Context, documentID string, partIndex int) (jobComplete bool, err error)

	// MarkFailed increments the part's retry count, records the failure,
	// and reports whether another retry is allowed.
	MarkFailed(ctx context.Context, documentID string, partIndex int, cause string) (retryCount int, canRetry bool, err error)

	// TryBeginMerge compare-and-sets the job status from processing to
	// merging. Exactly one caller wins under concurrent redelivery.
	TryBeginMerge(ctx context.Context, documentID string) (bool, error)

	// SetJobStatus overwrites the aggregate job status.
	SetJobStatus(ctx context.Context, documentID string, status models.JobStatus, progress float64, errMsg string) error

	// JobStatus reads the aggregate job status.
	JobStatus(ctx context.Context, documentID string) (models.JobStatus, error)

	// Snapshot projects the job's current progress.
	Snapshot(ctx context.Context, documentID string) (*models.JobProgressSnapshot, error)

	// Cleanup destroys all tracking state for the document.
	Cleanup(ctx context.Context, documentID string) error
}
