package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninalin0217/docsplit/internal/markdown"
	"github.com/ninalin0217/docsplit/internal/models"
	"github.com/ninalin0217/docsplit/internal/notify"
	"github.com/ninalin0217/docsplit/internal/partcache"
	"github.com/ninalin0217/docsplit/internal/tracker"
	"github.com/ninalin0217/docsplit/pkg/logger"
	"github.com/ninalin0217/docsplit/pkg/queue"
	"github.com/ninalin0217/docsplit/pkg/storage"
)

type storageFixture struct {
	cache    *partcache.Memory
	tracker  *tracker.Memory
	markdown markdown.Store
	bus      *queue.Memory
	notifier *notify.Memory
	worker   *StorageWorker
}

func newStorageFixture(t *testing.T, documentID string, totalParts, maxRetries int) *storageFixture {
	t.Helper()
	f := &storageFixture{
		cache:    partcache.NewMemory(),
		tracker:  tracker.NewMemory(),
		markdown: markdown.NewObjectStore(storage.NewMemory(), logger.NewTestLogger()),
		bus:      queue.NewMemory(),
		notifier: notify.NewMemory(),
	}
	f.worker = NewStorageWorker(f.cache, f.tracker, f.markdown, f.bus, f.notifier, time.Minute, logger.NewTestLogger())

	ctx := context.Background()
	require.NoError(t, f.tracker.Initialize(ctx, documentID, totalParts, maxRetries))
	require.NoError(t, f.tracker.SetJobStatus(ctx, documentID, models.JobProcessing, 0, ""))
	return f
}

func storeReq(documentID string, partIndex, totalParts int, content string) *models.PartStorageRequest {
	return &models.PartStorageRequest{
		DocumentID: documentID,
		PartIndex:  partIndex,
		TotalParts: totalParts,
		Content:    content,
		Priority:   2,
		MaxRetries: 3,
	}
}

func TestOutOfOrderPartsMergeInIndexOrder(t *testing.T) {
	const docID = "doc-a"
	f := newStorageFixture(t, docID, 4, 3)
	ctx := context.Background()

	for _, idx := range []int{2, 0, 3, 1} {
		content := fmt.Sprintf("# Part %d\n\nContent %d", idx, idx)
		require.NoError(t, f.worker.ProcessPart(ctx, storeReq(docID, idx, 4, content)))
	}

	merges := f.bus.Merges()
	require.Len(t, merges, 1)
	assert.Equal(t, docID, merges[0].DocumentID)
	assert.Equal(t, 4, merges[0].TotalParts)
	assert.Equal(t, []int{0, 1, 2, 3}, merges[0].CompletedParts)

	merged, err := f.cache.MergeAll(ctx, docID, 4)
	require.NoError(t, err)
	want := "# Part 0\n\nContent 0\n\n" +
		"# Part 1\n\nContent 1\n\n" +
		"# Part 2\n\nContent 2\n\n" +
		"# Part 3\n\nContent 3"
	assert.Equal(t, want, merged)

	status, err := f.tracker.JobStatus(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, models.JobMerging, status)
}

func TestEmptyContentExhaustsRetriesAndFailsJob(t *testing.T) {
	const docID = "doc-b"
	f := newStorageFixture(t, docID, 4, 3)
	ctx := context.Background()

	for _, idx := range []int{0, 1, 3} {
		content := fmt.Sprintf("# Part %d\n\nContent %d", idx, idx)
		require.NoError(t, f.worker.ProcessPart(ctx, storeReq(docID, idx, 4, content)))
	}

	// Part 2 keeps yielding blank output across its three attempts.
	for attempt := 0; attempt < 3; attempt++ {
		require.NoError(t, f.worker.ProcessPart(ctx, storeReq(docID, 2, 4, "   ")))
	}

	assert.Empty(t, f.bus.Merges())

	// The first two failures schedule delayed reconversions, the third
	// exhausts the budget.
	conversions := f.bus.Conversions()
	require.Len(t, conversions, 2)
	for i, c := range conversions {
		assert.Equal(t, docID, c.Request.DocumentID)
		assert.Equal(t, 2, c.Request.PartIndex)
		assert.Equal(t, i+1, c.Request.RetryCount)
		assert.Equal(t, "pdf-parts/doc-b/part_2.pdf", c.Request.PartKey)
		assert.Equal(t, time.Minute, c.Delay)
	}

	snapshot, err := f.tracker.Snapshot(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, snapshot.Status)
	assert.Equal(t, []int{2}, snapshot.FailedParts)
	assert.Equal(t, 3, snapshot.Parts[2].RetryCount)

	failedEvents := f.notifier.EventsOf(notify.EventPartFailed)
	require.Len(t, failedEvents, 3)
	last := failedEvents[2].Payload.(*models.PartStorageFailed)
	assert.Equal(t, 3, last.RetryCount)
	assert.False(t, last.CanRetry)

	assert.Len(t, f.notifier.EventsOf(notify.EventJobFailed), 1)
}

func TestRedeliveredPartIsIdempotent(t *testing.T) {
	const docID = "doc-c"
	f := newStorageFixture(t, docID, 2, 3)
	ctx := context.Background()

	req := storeReq(docID, 0, 2, "# Part 0")
	require.NoError(t, f.worker.ProcessPart(ctx, req))
	require.NoError(t, f.worker.ProcessPart(ctx, req))

	snapshot, err := f.tracker.Snapshot(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, snapshot.CompletedParts)
	assert.Equal(t, 50.0, snapshot.PercentComplete)
	assert.Empty(t, f.bus.Merges())

	require.NoError(t, f.worker.ProcessPart(ctx, storeReq(docID, 1, 2, "# Part 1")))
	assert.Len(t, f.bus.Merges(), 1)
}

func TestRedeliveryAfterMergeBeganDoesNotRetrigger(t *testing.T) {
	const docID = "doc-d"
	f := newStorageFixture(t, docID, 1, 3)
	ctx := context.Background()

	req := storeReq(docID, 0, 1, "only part")
	require.NoError(t, f.worker.ProcessPart(ctx, req))
	require.Len(t, f.bus.Merges(), 1)

	// A duplicate delivery of the final part finds the job already in
	// merging and must not enqueue a second merge.
	f.bus.ReleaseMerge(docID)
	require.NoError(t, f.worker.ProcessPart(ctx, req))
	assert.Len(t, f.bus.Merges(), 1)
}

func TestFailedPartRecoversOnRetry(t *testing.T) {
	const docID = "doc-e"
	f := newStorageFixture(t, docID, 2, 3)
	ctx := context.Background()

	require.NoError(t, f.worker.ProcessPart(ctx, storeReq(docID, 0, 2, "")))
	require.Len(t, f.bus.Conversions(), 1)

	require.NoError(t, f.worker.ProcessPart(ctx, storeReq(docID, 0, 2, "# Part 0 retried")))
	require.NoError(t, f.worker.ProcessPart(ctx, storeReq(docID, 1, 2, "# Part 1")))

	snapshot, err := f.tracker.Snapshot(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, models.JobMerging, snapshot.Status)
	assert.Empty(t, snapshot.FailedParts)
	assert.Len(t, f.bus.Merges(), 1)
}

func TestEnqueueMergeFailureRevertsTransition(t *testing.T) {
	const docID = "doc-f"
	f := newStorageFixture(t, docID, 1, 3)
	ctx := context.Background()

	f.bus.EnqueueMergeErr = fmt.Errorf("queue unavailable")
	err := f.worker.ProcessPart(ctx, storeReq(docID, 0, 1, "only part"))
	require.Error(t, err)

	status, statusErr := f.tracker.JobStatus(ctx, docID)
	require.NoError(t, statusErr)
	assert.Equal(t, models.JobProcessing, status)

	// Redelivery wins the transition again and succeeds.
	require.NoError(t, f.worker.ProcessPart(ctx, storeReq(docID, 0, 1, "only part")))
	assert.Len(t, f.bus.Merges(), 1)
}

func TestUnknownJobDropsPart(t *testing.T) {
	f := newStorageFixture(t, "doc-g", 1, 3)
	ctx := context.Background()

	require.NoError(t, f.worker.ProcessPart(ctx, storeReq("doc-unknown", 0, 1, "content")))
	assert.Empty(t, f.bus.Merges())
	assert.Empty(t, f.bus.Storages())

	_, found, err := f.cache.GetPart(ctx, "doc-unknown", 0)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMaterializedPartWrittenAlongsideCache(t *testing.T) {
	const docID = "doc-h"
	f := newStorageFixture(t, docID, 2, 3)
	ctx := context.Background()

	require.NoError(t, f.worker.ProcessPart(ctx, storeReq(docID, 0, 2, "# Part 0")))

	parts, err := f.markdown.LoadParts(ctx, docID, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"# Part 0"}, parts)
}
