package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis shares a cached value between processes. Values are JSON encoded
// under a single key. Any redis error is logged and treated as a miss.
type Redis[T any] struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedis builds a redis-backed cache for key.
func NewRedis[T any](client redis.Cmdable, key string, ttl time.Duration, logger zerolog.Logger) *Redis[T] {
	return &Redis[T]{
		client: client,
		key:    key,
		ttl:    ttl,
		logger: logger.With().Str("component", "cache").Str("key", key).Logger(),
	}
}

func (c *Redis[T]) Get(ctx context.Context) (T, bool) {
	var zero T
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, false
	}
	if err != nil {
		c.logger.Warn().Err(err).Msg("redis get failed; treating as miss")
		return zero, false
	}
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		c.logger.Warn().Err(err).Msg("cached value undecodable; treating as miss")
		return zero, false
	}
	return value, true
}

func (c *Redis[T]) Set(ctx context.Context, value T) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn().Err(err).Msg("encode cached value")
		return
	}
	if err := c.client.Set(ctx, c.key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("redis set failed")
	}
}

func (c *Redis[T]) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("redis del failed")
	}
}

var _ Cache[int] = (*Redis[int])(nil)
