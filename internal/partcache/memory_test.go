package partcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninalin0217/docsplit/internal/apperr"
	"github.com/ninalin0217/docsplit/internal/models"
)

func TestStorePartValidation(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	tests := []struct {
		name       string
		documentID string
		partIndex  int
		content    string
	}{
		{"empty document id", "", 0, "content"},
		{"negative index", "doc-1", -1, "content"},
		{"empty content", "doc-1", 0, ""},
		{"blank content", "doc-1", 0, "   \n\t  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.StorePart(ctx, tt.documentID, tt.partIndex, tt.content)
			var ve *apperr.ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestStorePartOverwritesSameKey(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	require.NoError(t, c.StorePart(ctx, "doc-1", 0, "first"))
	require.NoError(t, c.StorePart(ctx, "doc-1", 0, "second"))

	content, ok, err := c.GetPart(ctx, "doc-1", 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "second", content)

	entries, err := c.AllParts(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "one content record per key")
}

func TestGetPartAbsent(t *testing.T) {
	c := NewMemory()

	_, ok, err := c.GetPart(context.Background(), "doc-1", 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAllPartsAscendingByIndex(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	require.NoError(t, c.StorePart(ctx, "doc-1", 2, "c"))
	require.NoError(t, c.StorePart(ctx, "doc-1", 0, "a"))
	require.NoError(t, c.StorePart(ctx, "doc-1", 1, "b"))

	entries, err := c.AllParts(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, i, e.PartIndex)
	}
	assert.Equal(t, "a", entries[0].Content)
	assert.Equal(t, "c", entries[2].Content)
}

func TestMergeAllJoinsWithBlankLine(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	require.NoError(t, c.StorePart(ctx, "doc-1", 1, "# Part 1"))
	require.NoError(t, c.StorePart(ctx, "doc-1", 0, "# Part 0"))

	merged, err := c.MergeAll(ctx, "doc-1", 2)
	require.NoError(t, err)
	assert.Equal(t, "# Part 0\n\n# Part 1", merged)
}

func TestMergeAllReportsFirstMissingIndex(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	require.NoError(t, c.StorePart(ctx, "doc-1", 0, "a"))
	require.NoError(t, c.StorePart(ctx, "doc-1", 2, "c"))

	_, err := c.MergeAll(ctx, "doc-1", 3)
	var me *apperr.MergeError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, 1, me.MissingIndex)
}

func TestPartStatusIndependentOfContent(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	// A part can be marked processing before any content exists.
	require.NoError(t, c.SetPartStatus(ctx, "doc-1", 0, models.PartProcessing))

	status, err := c.PartStatus(ctx, "doc-1", 0)
	require.NoError(t, err)
	assert.Equal(t, models.PartProcessing, status)

	_, ok, err := c.GetPart(ctx, "doc-1", 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCleanupRemovesEverything(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	require.NoError(t, c.StorePart(ctx, "doc-1", 0, "a"))
	require.NoError(t, c.SetPartStatus(ctx, "doc-1", 0, models.PartCompleted))

	require.NoError(t, c.Cleanup(ctx, "doc-1"))

	entries, err := c.AllParts(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
	status, err := c.PartStatus(ctx, "doc-1", 0)
	require.NoError(t, err)
	assert.Empty(t, status)
}
