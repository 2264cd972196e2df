package partcache

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ninalin0217/docsplit/internal/apperr"
	"github.com/ninalin0217/docsplit/internal/models"
)

// DefaultTTL bounds how long cached part content may linger after the
// last write. The merge coordinator falls back to the materialized part
// objects when the cache expired underneath a slow job.
const DefaultTTL = 24 * time.Hour

// Redis implements Cache on redis hashes, one hash per document for
// content and one for status, both refreshed to the TTL on every write.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, ttl: DefaultTTL}
}

// NewRedisTTL overrides the eviction TTL.
func NewRedisTTL(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func contentKey(id string) string  { return "partcache:" + id + ":content" }
func statusKey(id string) string   { return "partcache:" + id + ":status" }
func storedAtKey(id string) string { return "partcache:" + id + ":storedAt" }

func (r *Redis) StorePart(ctx context.Context, documentID string, partIndex int, content string) error {
	if err := validateStore(documentID, partIndex, content); err != nil {
		return err
	}

	field := strconv.Itoa(partIndex)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, contentKey(documentID), field, content)
	pipe.HSet(ctx, storedAtKey(documentID), field, time.Now().Format(time.RFC3339))
	pipe.Expire(ctx, contentKey(documentID), r.ttl)
	pipe.Expire(ctx, statusKey(documentID), r.ttl)
	pipe.Expire(ctx, storedAtKey(documentID), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return &apperr.StorageError{Op: "store part", Err: err}
	}
	return nil
}

func (r *Redis) GetPart(ctx context.Context, documentID string, partIndex int) (string, bool, error) {
	content, err := r.client.HGet(ctx, contentKey(documentID), strconv.Itoa(partIndex)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, &apperr.StorageError{Op: "get part", Err: err}
	}
	return content, true, nil
}

func (r *Redis) AllParts(ctx context.Context, documentID string) ([]models.PartEntry, error) {
	contents, err := r.client.HGetAll(ctx, contentKey(documentID)).Result()
	if err != nil {
		return nil, &apperr.StorageError{Op: "all parts", Err: err}
	}
	statuses, err := r.client.HGetAll(ctx, statusKey(documentID)).Result()
	if err != nil {
		return nil, &apperr.StorageError{Op: "all parts", Err: err}
	}
	storedAts, err := r.client.HGetAll(ctx, storedAtKey(documentID)).Result()
	if err != nil {
		return nil, &apperr.StorageError{Op: "all parts", Err: err}
	}

	seen := make(map[int]struct{})
	indices := make([]int, 0, len(contents))
	for field := range contents {
		if i, err := strconv.Atoi(field); err == nil {
			indices = append(indices, i)
			seen[i] = struct{}{}
		}
	}
	for field := range statuses {
		if i, err := strconv.Atoi(field); err == nil {
			if _, ok := seen[i]; !ok {
				indices = append(indices, i)
			}
		}
	}
	sort.Ints(indices)

	entries := make([]models.PartEntry, 0, len(indices))
	for _, i := range indices {
		field := strconv.Itoa(i)
		storedAt, _ := time.Parse(time.RFC3339, storedAts[field])
		entries = append(entries, models.PartEntry{
			PartIndex: i,
			Content:   contents[field],
			Status:    models.PartStatus(statuses[field]),
			StoredAt:  storedAt,
		})
	}
	return entries, nil
}

func (r *Redis) MergeAll(ctx context.Context, documentID string, totalParts int) (string, error) {
	contents, err := r.client.HGetAll(ctx, contentKey(documentID)).Result()
	if err != nil {
		return "", &apperr.StorageError{Op: "merge all", Err: err}
	}

	parts := make([]string, 0, totalParts)
	for i := 0; i < totalParts; i++ {
		content, ok := contents[strconv.Itoa(i)]
		if !ok || content == "" {
			return "", &apperr.MergeError{DocumentID: documentID, MissingIndex: i}
		}
		parts = append(parts, content)
	}
	return strings.Join(parts, PartSeparator), nil
}

func (r *Redis) SetPartStatus(ctx context.Context, documentID string, partIndex int, status models.PartStatus) error {
	if documentID == "" {
		return &apperr.ValidationError{Field: "documentId", Reason: "must not be empty"}
	}
	if partIndex < 0 {
		return &apperr.ValidationError{Field: "partIndex", Reason: "must not be negative"}
	}
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, statusKey(documentID), strconv.Itoa(partIndex), string(status))
	pipe.Expire(ctx, statusKey(documentID), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return &apperr.StorageError{Op: "set part status", Err: err}
	}
	return nil
}

func (r *Redis) PartStatus(ctx context.Context, documentID string, partIndex int) (models.PartStatus, error) {
	status, err := r.client.HGet(ctx, statusKey(documentID), strconv.Itoa(partIndex)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", &apperr.StorageError{Op: "get part status", Err: err}
	}
	return models.PartStatus(status), nil
}

func (r *Redis) Cleanup(ctx context.Context, documentID string) error {
	err := r.client.Del(ctx,
		contentKey(documentID),
		statusKey(documentID),
		storedAtKey(documentID),
	).Err()
	if err != nil {
		return &apperr.StorageError{Op: "cleanup", Err: err}
	}
	return nil
}
