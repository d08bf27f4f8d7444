package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher sends push events over Redis pub/sub. The websocket gateway
// subscribes to the same channel keys.
type RedisPublisher struct {
	client redis.UniversalClient
}

// NewRedisPublisher wraps an existing client.
func NewRedisPublisher(client redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish marshals event to JSON and PUBLISHes it on channelKey.
func (p *RedisPublisher) Publish(ctx context.Context, channelKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event for %s: %w", channelKey, err)
	}
	if err := p.client.Publish(ctx, channelKey, body).Err(); err != nil {
		return fmt.Errorf("redis publish to %s: %w", channelKey, err)
	}
	return nil
}
