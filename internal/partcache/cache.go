// Package partcache stores each part's converted text keyed by
// (documentId, partIndex), with ordered retrieval and merge. Writes are
// idempotent per key: a later write fully replaces the prior value.
package partcache

import (
	"context"
	"strings"

	"github.com/ninalin0217/docsplit/internal/apperr"
	"github.com/ninalin0217/docsplit/internal/models"
)

// Cache is the part content store.
type Cache interface {
	// StorePart writes one part's content. Empty document ids, negative
	// indices, and blank content are rejected with a ValidationError.
	// Empty converter output is a conversion failure, never valid
	// content.
	StorePart(ctx context.Context, documentID string, partIndex int, content string) error

	// GetPart returns the content for one part, reporting presence.
	GetPart(ctx context.Context, documentID string, partIndex int) (string, bool, error)

	// AllParts returns every stored part ascending by index.
	AllParts(ctx context.Context, documentID string) ([]models.PartEntry, error)

	// MergeAll concatenates all parts in ascending index order joined by
	// a blank line. A missing index in 0..totalParts-1 yields a
	// MergeError naming the first gap.
	MergeAll(ctx context.Context, documentID string, totalParts int) (string, error)

	// SetPartStatus tracks a part's status independently of its content,
	// so a part can be marked processing before any content exists.
	SetPartStatus(ctx context.Context, documentID string, partIndex int, status models.PartStatus) error

	// PartStatus reads a part's status.
	PartStatus(ctx context.Context, documentID string, partIndex int) (models.PartStatus, error)

	// Cleanup deletes all parts and metadata for the document.
	Cleanup(ctx context.Context, documentID string) error
}

// PartSeparator joins parts in the merged document.
const PartSeparator = "\n\n"

func validateStore(documentID string, partIndex int, content string) error {
	if documentID == "" {
		return &apperr.ValidationError{Field: "documentId", Reason: "must not be empty"}
	}
	if partIndex < 0 {
		return &apperr.ValidationError{Field: "partIndex", Reason: "must not be negative"}
	}
	if strings.TrimSpace(content) == "" {
		return &apperr.ValidationError{Field: "content", Reason: "must not be empty or blank"}
	}
	return nil
}
