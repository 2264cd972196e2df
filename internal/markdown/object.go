package markdown

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ninalin0217/docsplit/internal/apperr"
	"github.com/ninalin0217/docsplit/internal/models"
	"github.com/ninalin0217/docsplit/pkg/logger"
	"github.com/ninalin0217/docsplit/pkg/storage"
)

// ObjectStore implements Store on any pkg/storage backend.
type ObjectStore struct {
	storage storage.Storage
	logger  logger.Logger
}

func NewObjectStore(st storage.Storage, log logger.Logger) *ObjectStore {
	return &ObjectStore{storage: st, logger: log}
}

func markdownKey(id string) string { return "markdown/" + id + ".md" }
func partKey(id string, idx int) string {
	return fmt.Sprintf("markdown/%s/parts/part_%03d.md", id, idx)
}
func partPrefix(id string) string  { return "markdown/" + id + "/parts/" }
func manifestKey(id string) string { return "manifests/" + id + ".json" }
func statusKey(id string) string   { return "status/" + id + ".json" }

func (s *ObjectStore) SaveMarkdown(ctx context.Context, documentID, text string) error {
	_, err := s.storage.Store(ctx, strings.NewReader(text), markdownKey(documentID))
	if err != nil {
		return &apperr.PersistenceError{Err: err}
	}
	return nil
}

func (s *ObjectStore) GetMarkdown(ctx context.Context, documentID string) (string, error) {
	return s.read(ctx, markdownKey(documentID))
}

func (s *ObjectStore) SavePart(ctx context.Context, documentID string, partIndex int, text string) error {
	_, err := s.storage.Store(ctx, strings.NewReader(text), partKey(documentID, partIndex))
	if err != nil {
		return fmt.Errorf("failed to save part markdown: %w", err)
	}
	return nil
}

func (s *ObjectStore) LoadParts(ctx context.Context, documentID string, totalParts int) ([]string, error) {
	parts := make([]string, 0, totalParts)
	for i := 0; i < totalParts; i++ {
		text, err := s.read(ctx, partKey(documentID, i))
		if err != nil {
			return nil, &apperr.MergeError{DocumentID: documentID, MissingIndex: i}
		}
		parts = append(parts, text)
	}
	return parts, nil
}

func (s *ObjectStore) UpdateStatus(ctx context.Context, documentID string, status models.JobStatus, progress float64, errMsg string) error {
	record := DocumentStatus{
		DocumentID: documentID,
		Status:     status,
		Progress:   progress,
		Error:      errMsg,
		UpdatedAt:  time.Now(),
	}
	if status == models.JobCompleted || status == models.JobFailed {
		record.FinishedAt = record.UpdatedAt
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if _, err := s.storage.Store(ctx, bytes.NewReader(data), statusKey(documentID)); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

func (s *ObjectStore) GetStatus(ctx context.Context, documentID string) (*DocumentStatus, error) {
	data, err := s.read(ctx, statusKey(documentID))
	if err != nil {
		return nil, err
	}
	var record DocumentStatus
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return &record, nil
}

func (s *ObjectStore) SaveManifest(ctx context.Context, manifest *models.DocumentManifest) error {
	data, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if _, err := s.storage.Store(ctx, bytes.NewReader(data), manifestKey(manifest.DocumentID)); err != nil {
		return fmt.Errorf("failed to save manifest: %w", err)
	}
	return nil
}

func (s *ObjectStore) GetManifest(ctx context.Context, documentID string) (*models.DocumentManifest, error) {
	data, err := s.read(ctx, manifestKey(documentID))
	if err != nil {
		return nil, err
	}
	var manifest models.DocumentManifest
	if err := json.Unmarshal([]byte(data), &manifest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return &manifest, nil
}

func (s *ObjectStore) Cleanup(ctx context.Context, documentID string) error {
	keys, err := s.storage.List(ctx, partPrefix(documentID))
	if err != nil {
		return fmt.Errorf("failed to list part markdowns: %w", err)
	}
	for _, key := range keys {
		if err := s.storage.Delete(ctx, key); err != nil {
			s.logger.Warn("Failed to delete part markdown",
				logger.String("documentId", documentID),
				logger.String("key", key),
				logger.Error(err),
			)
		}
	}
	return nil
}

func (s *ObjectStore) read(ctx context.Context, key string) (string, error) {
	reader, err := s.storage.Get(ctx, key)
	if err != nil {
		return "", ErrNotFound
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", ErrNotFound
	}
	return string(data), nil
}
