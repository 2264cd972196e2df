package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ninalin0217/docsplit/pkg/logger"
	"github.com/ninalin0217/docsplit/pkg/storage/minio"
	"github.com/ninalin0217/docsplit/pkg/storage/s3"
)

// Type selects the object storage backend.
type Type string

const (
	TypeS3    Type = "s3"
	TypeMinio Type = "minio"
)

// Storage is the object store contract shared by all backends. Keys are
// opaque slash-separated paths.
type Storage interface {
	// Store writes an object and returns its key.
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	// Get opens an object for reading.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes one object.
	Delete(ctx context.Context, key string) error
	// List returns the keys under a prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// CleanupBefore deletes objects last modified before threshold.
	CleanupBefore(ctx context.Context, threshold time.Time) error
}

// New constructs the backend selected at configuration time. Backends
// are never chosen by runtime type inspection.
func New(storageType Type, log logger.Logger) (Storage, error) {
	switch storageType {
	case TypeS3:
		return s3.GetClient(log)
	case TypeMinio:
		return minio.GetClient(log)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
