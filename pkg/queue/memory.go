package queue

import (
	"context"
	"sync"
	"time"

	"github.com/ninalin0217/docsplit/internal/models"
)

// Memory is an in-process Bus used by tests. It records every enqueue
// and deduplicates merge requests per document the way the real bus
// does.
type Memory struct {
	mu           sync.Mutex
	conversions  []DelayedConversion
	storages     []models.PartStorageRequest
	merges       []models.MergingRequest
	mergePending map[string]bool

	// EnqueueMergeErr, when set, is returned by the next EnqueueMerge.
	EnqueueMergeErr error
}

// DelayedConversion pairs a conversion request with its requested delay.
type DelayedConversion struct {
	Request models.PartConversionRequest
	Delay   time.Duration
}

func NewMemory() *Memory {
	return &Memory{mergePending: make(map[string]bool)}
}

func (m *Memory) EnqueuePartConversion(ctx context.Context, req *models.PartConversionRequest, delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversions = append(m.conversions, DelayedConversion{Request: *req, Delay: delay})
	return nil
}

func (m *Memory) EnqueuePartStorage(ctx context.Context, req *models.PartStorageRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storages = append(m.storages, *req)
	return nil
}

func (m *Memory) EnqueueMerge(ctx context.Context, req *models.MergingRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EnqueueMergeErr != nil {
		err := m.EnqueueMergeErr
		m.EnqueueMergeErr = nil
		return err
	}
	if m.mergePending[req.DocumentID] {
		return nil
	}
	m.mergePending[req.DocumentID] = true
	m.merges = append(m.merges, *req)
	return nil
}

func (m *Memory) Close() error { return nil }

// Conversions returns all recorded conversion enqueues.
func (m *Memory) Conversions() []DelayedConversion {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DelayedConversion, len(m.conversions))
	copy(out, m.conversions)
	return out
}

// Storages returns all recorded storage enqueues.
func (m *Memory) Storages() []models.PartStorageRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.PartStorageRequest, len(m.storages))
	copy(out, m.storages)
	return out
}

// Merges returns all recorded merge enqueues after dedupe.
func (m *Memory) Merges() []models.MergingRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.MergingRequest, len(m.merges))
	copy(out, m.merges)
	return out
}

// ReleaseMerge clears the pending-merge dedupe mark for a document, as
// if the merge task had been consumed.
func (m *Memory) ReleaseMerge(documentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.mergePending, documentID)
}
