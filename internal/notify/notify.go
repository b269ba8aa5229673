// Package notify delivers realtime notifications to connected clients.
// Delivery is fire-and-forget: a failed publish is logged by the caller and
// never fails the operation that produced it.
package notify

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/v9"
)

// Publisher sends one named event to one user's channel.
type Publisher interface {
	Publish(ctx context.Context, userID uuid.UUID, event string, payload any) error
}

// RedisPublisher publishes over Redis pub/sub on a per-user channel.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher constructs a publisher.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

type envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Publish marshals the event and publishes it to user:<id>.
func (p *RedisPublisher) Publish(ctx context.Context, userID uuid.UUID, event string, payload any) error {
	msg, err := json.Marshal(envelope{Event: event, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	if err := p.client.Publish(ctx, "user:"+userID.String(), msg).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}
