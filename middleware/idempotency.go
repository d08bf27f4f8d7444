package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// IdempotencyHeader carries the client-chosen key of a retryable request.
const IdempotencyHeader = "Idempotency-Key"

// ReplayedHeader is set on responses served from the cache.
const ReplayedHeader = "Idempotent-Replayed"

// ResponseCache stores serialized responses by key.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisResponseCache keeps responses in Redis.
type RedisResponseCache struct {
	client redis.UniversalClient
}

func NewRedisResponseCache(client redis.UniversalClient) *RedisResponseCache {
	return &RedisResponseCache{client: client}
}

func (r *RedisResponseCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (r *RedisResponseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Idempotency replays the first answer to a POST that is retried with the same
// Idempotency-Key by the same caller. Server errors are not cached so the retry
// runs again. A nil cache disables the middleware. It must run after Protected.
func Idempotency(cache ResponseCache, ttl time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get(IdempotencyHeader)
		if cache == nil || key == "" || c.Method() != fiber.MethodPost {
			return c.Next()
		}

		owner := "anonymous"
		if who, ok := IdentityFrom(c); ok {
			owner = who.UserID.String()
		}
		cacheKey := fmt.Sprintf("idem:%s:%s:%s", owner, c.Path(), key)
		ctx := c.UserContext()

		if data, found, err := cache.Get(ctx, cacheKey); err != nil {
			log.Printf("Idempotency: cache lookup for %s failed, running request: %v", cacheKey, err)
		} else if found {
			var cached cachedResponse
			if err := json.Unmarshal(data, &cached); err == nil {
				log.Printf("Idempotency: replaying %s", cacheKey)
				c.Set(ReplayedHeader, "true")
				if cached.ContentType != "" {
					c.Set(fiber.HeaderContentType, cached.ContentType)
				}
				return c.Status(cached.Status).Send(cached.Body)
			}
			log.Printf("Idempotency: discarding unreadable entry %s", cacheKey)
		}

		if err := c.Next(); err != nil {
			return err
		}

		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError {
			return nil
		}
		data, err := json.Marshal(cachedResponse{
			Status:      status,
			ContentType: string(c.Response().Header.ContentType()),
			Body:        append([]byte(nil), c.Response().Body()...),
		})
		if err != nil {
			return nil
		}
		if err := cache.Set(ctx, cacheKey, data, ttl); err != nil {
			log.Printf("Idempotency: failed to store %s: %v", cacheKey, err)
		}
		return nil
	}
}
