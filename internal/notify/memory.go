package notify

import (
	"context"
	"sync"

	"github.com/ninalin0217/docsplit/internal/models"
)

// Memory records published events for assertions in tests.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func NewMemory() *Memory {
	return &Memory{events: make([]Event, 0)}
}

func (n *Memory) PublishProgress(ctx context.Context, progress *models.PartStorageProgress) error {
	n.record(Event{Type: EventPartProgress, DocumentID: progress.DocumentID, Payload: progress})
	return nil
}

func (n *Memory) PublishPartCompleted(ctx context.Context, completed *models.PartStorageCompleted) error {
	n.record(Event{Type: EventPartCompleted, DocumentID: completed.DocumentID, Payload: completed})
	return nil
}

func (n *Memory) PublishPartFailed(ctx context.Context, failed *models.PartStorageFailed) error {
	n.record(Event{Type: EventPartFailed, DocumentID: failed.DocumentID, Payload: failed})
	return nil
}

func (n *Memory) PublishJobEvent(ctx context.Context, eventType EventType, documentID string, payload interface{}) error {
	n.record(Event{Type: eventType, DocumentID: documentID, Payload: payload})
	return nil
}

func (n *Memory) record(event Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

// Events returns a copy of everything published so far.
func (n *Memory) Events() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	events := make([]Event, len(n.events))
	copy(events, n.events)
	return events
}

// EventsOf filters recorded events by type.
func (n *Memory) EventsOf(eventType EventType) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Event
	for _, e := range n.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
