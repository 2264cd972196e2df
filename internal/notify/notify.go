// Package notify publishes pipeline lifecycle events. Delivery is
// best-effort: a lost event never fails the operation that emitted it.
package notify

import (
	"context"

	"github.com/ninalin0217/docsplit/internal/models"
)

// EventType names a lifecycle event.
type EventType string

const (
	EventPartProgress  EventType = "part.progress"
	EventPartCompleted EventType = "part.completed"
	EventPartFailed    EventType = "part.failed"
	EventJobMerging    EventType = "job.merging"
	EventJobCompleted  EventType = "job.completed"
	EventJobFailed     EventType = "job.failed"
)

// Event is the envelope published for every notification.
type Event struct {
	Type       EventType   `json:"type"`
	DocumentID string      `json:"documentId"`
	Payload    interface{} `json:"payload,omitempty"`
}

// Notifier publishes events about a document's pipeline progress.
type Notifier interface {
	PublishProgress(ctx context.Context, progress *models.PartStorageProgress) error
	PublishPartCompleted(ctx context.Context, completed *models.PartStorageCompleted) error
	PublishPartFailed(ctx context.Context, failed *models.PartStorageFailed) error
	PublishJobEvent(ctx context.Context, eventType EventType, documentID string, payload interface{}) error
}
