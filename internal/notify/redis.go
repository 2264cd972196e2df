package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ninalin0217/docsplit/internal/models"
	"github.com/ninalin0217/docsplit/pkg/logger"
)

// Redis publishes events on a per-document pub/sub channel. Subscribers
// that are not listening simply miss the event.
type Redis struct {
	client *redis.Client
	logger logger.Logger
}

func NewRedis(client *redis.Client, log logger.Logger) *Redis {
	return &Redis{client: client, logger: log.Named("notify")}
}

func channelFor(documentID string) string {
	return "docsplit:events:" + documentID
}

func (n *Redis) PublishProgress(ctx context.Context, progress *models.PartStorageProgress) error {
	return n.publish(ctx, &Event{
		Type:       EventPartProgress,
		DocumentID: progress.DocumentID,
		Payload:    progress,
	})
}

func (n *Redis) PublishPartCompleted(ctx context.Context, completed *models.PartStorageCompleted) error {
	return n.publish(ctx, &Event{
		Type:       EventPartCompleted,
		DocumentID: completed.DocumentID,
		Payload:    completed,
	})
}

func (n *Redis) PublishPartFailed(ctx context.Context, failed *models.PartStorageFailed) error {
	return n.publish(ctx, &Event{
		Type:       EventPartFailed,
		DocumentID: failed.DocumentID,
		Payload:    failed,
	})
}

func (n *Redis) PublishJobEvent(ctx context.Context, eventType EventType, documentID string, payload interface{}) error {
	return n.publish(ctx, &Event{
		Type:       eventType,
		DocumentID: documentID,
		Payload:    payload,
	})
}

func (n *Redis) publish(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := n.client.Publish(ctx, channelFor(event.DocumentID), data).Err(); err != nil {
		n.logger.Warn("Failed to publish event",
			logger.String("type", string(event.Type)),
			logger.String("documentId", event.DocumentID),
			logger.Error(err),
		)
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
