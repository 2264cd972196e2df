package tracker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ninalin0217/docsplit/internal/apperr"
	"github.com/ninalin0217/docsplit/internal/models"
)

// Memory is an in-process Tracker used by tests and single-node runs.
// A per-job mutex gives the same single-writer-per-document semantics
// the redis scripts provide.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]*memJob
}

type memJob struct {
	mu         sync.Mutex
	totalParts int
	maxRetries int
	status     models.JobStatus
	progress   float64
	errMsg     string
	parts      []memPart
	completed  map[int]struct{}
	failed     map[int]struct{}
}

type memPart struct {
	status     models.PartStatus
	retryCount int
	lastError  string
	updatedAt  time.Time
}

func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]*memJob)}
}

func (m *Memory) job(documentID string) (*memJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[documentID]
	if !ok {
		return nil, apperr.ErrJobNotFound
	}
	return j, nil
}

func (m *Memory) Initialize(ctx context.Context, documentID string, totalParts, maxRetries int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.jobs[documentID]; ok {
		if existing.totalParts == totalParts {
			return nil
		}
		return &apperr.JobInconsistencyError{
			DocumentID: documentID,
			Have:       existing.totalParts,
			Want:       totalParts,
		}
	}

	j := &memJob{
		totalParts: totalParts,
		maxRetries: maxRetries,
		status:     models.JobPending,
		parts:      make([]memPart, totalParts),
		completed:  make(map[int]struct{}),
		failed:     make(map[int]struct{}),
	}
	for i := range j.parts {
		j.parts[i] = memPart{status: models.PartPending, updatedAt: time.Now()}
	}
	m.jobs[documentID] = j
	return nil
}

func (m *Memory) MarkProcessing(ctx context.Context, documentID string, partIndex int) error {
	j, err := m.job(documentID)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if partIndex < 0 || partIndex >= j.totalParts {
		return apperr.ErrJobNotFound
	}
	j.parts[partIndex].status = models.PartProcessing
	j.parts[partIndex].updatedAt = time.Now()
	return nil
}

func (m *Memory) MarkCompleted(ctx context.Context, documentID string, partIndex int) (bool, error) {
	j, err := m.job(documentID)
	if err != nil {
		return false, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if partIndex < 0 || partIndex >= j.totalParts {
		return false, apperr.ErrJobNotFound
	}
	j.parts[partIndex].status = models.PartCompleted
	j.parts[partIndex].lastError = ""
	j.parts[partIndex].updatedAt = time.Now()
	j.completed[partIndex] = struct{}{}
	delete(j.failed, partIndex)
	return len(j.completed) == j.totalParts, nil
}

func (m *Memory) MarkFailed(ctx context.Context, documentID string, partIndex int, cause string) (int, bool, error) {
	j, err := m.job(documentID)
	if err != nil {
		return 0, false, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if partIndex < 0 || partIndex >= j.totalParts {
		return 0, false, apperr.ErrJobNotFound
	}
	p := &j.parts[partIndex]
	p.retryCount++
	p.status = models.PartFailed
	p.lastError = cause
	p.updatedAt = time.Now()
	j.failed[partIndex] = struct{}{}
	return p.retryCount, p.retryCount < j.maxRetries, nil
}

func (m *Memory) TryBeginMerge(ctx context.Context, documentID string) (bool, error) {
	j, err := m.job(documentID)
	if err != nil {
		return false, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != models.JobProcessing {
		return false, nil
	}
	j.status = models.JobMerging
	return true, nil
}

func (m *Memory) SetJobStatus(ctx context.Context, documentID string, status models.JobStatus, progress float64, errMsg string) error {
	j, err := m.job(documentID)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = status
	j.progress = progress
	j.errMsg = errMsg
	return nil
}

func (m *Memory) JobStatus(ctx context.Context, documentID string) (models.JobStatus, error) {
	j, err := m.job(documentID)
	if err != nil {
		return "", err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status, nil
}

func (m *Memory) Snapshot(ctx context.Context, documentID string) (*models.JobProgressSnapshot, error) {
	j, err := m.job(documentID)
	if err != nil {
		return nil, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	snap := &models.JobProgressSnapshot{
		DocumentID:     documentID,
		Status:         j.status,
		TotalParts:     j.totalParts,
		CompletedParts: sortedIndices(j.completed),
		FailedParts:    sortedIndices(j.failed),
		Error:          j.errMsg,
	}
	for i, p := range j.parts {
		snap.Parts = append(snap.Parts, models.DocumentPart{
			DocumentID: documentID,
			PartIndex:  i,
			Status:     p.status,
			RetryCount: p.retryCount,
			MaxRetries: j.maxRetries,
			LastError:  p.lastError,
			UpdatedAt:  p.updatedAt,
		})
	}
	if j.totalParts > 0 {
		snap.PercentComplete = 100 * float64(len(j.completed)) / float64(j.totalParts)
	}
	return snap, nil
}

func (m *Memory) Cleanup(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, documentID)
	return nil
}

func sortedIndices(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for i := range set {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
