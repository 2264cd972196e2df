package markdown

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninalin0217/docsplit/internal/apperr"
	"github.com/ninalin0217/docsplit/internal/models"
	"github.com/ninalin0217/docsplit/pkg/logger"
	"github.com/ninalin0217/docsplit/pkg/storage"
)

func newStore() *ObjectStore {
	return NewObjectStore(storage.NewMemory(), logger.NewTestLogger())
}

func TestSaveAndGetMarkdown(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	require.NoError(t, s.SaveMarkdown(ctx, "doc-1", "# Title\n\nBody"))

	text, err := s.GetMarkdown(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nBody", text)
}

func TestGetMarkdownMissing(t *testing.T) {
	s := newStore()

	_, err := s.GetMarkdown(context.Background(), "doc-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadPartsInOrder(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	require.NoError(t, s.SavePart(ctx, "doc-1", 1, "part one"))
	require.NoError(t, s.SavePart(ctx, "doc-1", 0, "part zero"))

	parts, err := s.LoadParts(ctx, "doc-1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"part zero", "part one"}, parts)
}

func TestLoadPartsMissingIndex(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	require.NoError(t, s.SavePart(ctx, "doc-1", 0, "part zero"))
	require.NoError(t, s.SavePart(ctx, "doc-1", 2, "part two"))

	_, err := s.LoadParts(ctx, "doc-1", 3)
	var me *apperr.MergeError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, 1, me.MissingIndex)
}

func TestStatusRoundTrip(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	require.NoError(t, s.UpdateStatus(ctx, "doc-1", models.JobCompleted, 100, ""))

	record, err := s.GetStatus(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, record.Status)
	assert.Equal(t, 100.0, record.Progress)
	assert.False(t, record.FinishedAt.IsZero())
}

func TestManifestRoundTrip(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	manifest := &models.DocumentManifest{
		DocumentID: "doc-1",
		SourceKey:  "uploads/doc-1.pdf",
		PageCount:  65,
		TotalParts: 4,
		Parts: []models.ManifestPart{
			{PartIndex: 0, PageRange: models.PageRange{Start: 1, End: 20}, ObjectKey: "pdf-parts/doc-1/part_0.pdf"},
		},
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.SaveManifest(ctx, manifest))

	got, err := s.GetManifest(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, manifest.DocumentID, got.DocumentID)
	assert.Equal(t, manifest.PageCount, got.PageCount)
	require.Len(t, got.Parts, 1)
	assert.Equal(t, manifest.Parts[0].ObjectKey, got.Parts[0].ObjectKey)
}

func TestCleanupRemovesPartsButKeepsFinal(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	require.NoError(t, s.SavePart(ctx, "doc-1", 0, "part zero"))
	require.NoError(t, s.SaveMarkdown(ctx, "doc-1", "final"))

	require.NoError(t, s.Cleanup(ctx, "doc-1"))

	_, err := s.LoadParts(ctx, "doc-1", 1)
	assert.Error(t, err)
	text, err := s.GetMarkdown(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "final", text)
}
