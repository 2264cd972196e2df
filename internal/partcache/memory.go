package partcache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ninalin0217/docsplit/internal/apperr"
	"github.com/ninalin0217/docsplit/internal/models"
)

// Memory is an in-process Cache for tests and single-node runs.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]*memDoc
}

type memDoc struct {
	content  map[int]string
	status   map[int]models.PartStatus
	storedAt map[int]time.Time
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string]*memDoc)}
}

func (m *Memory) doc(documentID string) *memDoc {
	d, ok := m.docs[documentID]
	if !ok {
		d = &memDoc{
			content:  make(map[int]string),
			status:   make(map[int]models.PartStatus),
			storedAt: make(map[int]time.Time),
		}
		m.docs[documentID] = d
	}
	return d
}

func (m *Memory) StorePart(ctx context.Context, documentID string, partIndex int, content string) error {
	if err := validateStore(documentID, partIndex, content); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.doc(documentID)
	d.content[partIndex] = content
	d.storedAt[partIndex] = time.Now()
	return nil
}

func (m *Memory) GetPart(ctx context.Context, documentID string, partIndex int) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[documentID]
	if !ok {
		return "", false, nil
	}
	content, ok := d.content[partIndex]
	return content, ok, nil
}

func (m *Memory) AllParts(ctx context.Context, documentID string) ([]models.PartEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[documentID]
	if !ok {
		return nil, nil
	}

	indices := make([]int, 0, len(d.content))
	seen := make(map[int]struct{})
	for i := range d.content {
		indices = append(indices, i)
		seen[i] = struct{}{}
	}
	for i := range d.status {
		if _, ok := seen[i]; !ok {
			indices = append(indices, i)
		}
	}
	sort.Ints(indices)

	entries := make([]models.PartEntry, 0, len(indices))
	for _, i := range indices {
		entries = append(entries, models.PartEntry{
			PartIndex: i,
			Content:   d.content[i],
			Status:    d.status[i],
			StoredAt:  d.storedAt[i],
		})
	}
	return entries, nil
}

func (m *Memory) MergeAll(ctx context.Context, documentID string, totalParts int) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[documentID]
	if !ok {
		return "", &apperr.MergeError{DocumentID: documentID, MissingIndex: 0}
	}

	parts := make([]string, 0, totalParts)
	for i := 0; i < totalParts; i++ {
		content, ok := d.content[i]
		if !ok {
			return "", &apperr.MergeError{DocumentID: documentID, MissingIndex: i}
		}
		parts = append(parts, content)
	}
	return strings.Join(parts, PartSeparator), nil
}

func (m *Memory) SetPartStatus(ctx context.Context, documentID string, partIndex int, status models.PartStatus) error {
	if documentID == "" {
		return &apperr.ValidationError{Field: "documentId", Reason: "must not be empty"}
	}
	if partIndex < 0 {
		return &apperr.ValidationError{Field: "partIndex", Reason: "must not be negative"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc(documentID).status[partIndex] = status
	return nil
}

func (m *Memory) PartStatus(ctx context.Context, documentID string, partIndex int) (models.PartStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[documentID]
	if !ok {
		return "", nil
	}
	return d.status[partIndex], nil
}

func (m *Memory) Cleanup(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, documentID)
	return nil
}
