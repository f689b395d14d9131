package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "applytrack:ratelimit:"

// RedisCounter is a Redis implementation of core.CounterStore. Windows are
// enforced with key expiry, so Cleanup has nothing to do.
type RedisCounter struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisCounter connects to Redis and verifies the connection
func NewRedisCounter(ctx context.Context, addr, password string, db int, logger *zap.Logger) (*RedisCounter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCounterFromClient(client, logger), nil
}

// NewRedisCounterFromClient wraps an existing client
func NewRedisCounterFromClient(client *redis.Client, logger *zap.Logger) *RedisCounter {
	return &RedisCounter{client: client, logger: logger}
}

// Increment runs INCR and sets the expiry on the first hit of a window
func (c *RedisCounter) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	redisKey := redisKeyPrefix + key

	hits, err := c.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment rate counter: %w", err)
	}

	if hits == 1 {
		if err := c.client.PExpire(ctx, redisKey, window).Err(); err != nil {
			return 0, fmt.Errorf("failed to set rate counter expiry: %w", err)
		}
	}

	return hits, nil
}

// Cleanup is a no-op; Redis expires keys on its own
func (c *RedisCounter) Cleanup(ctx context.Context) error {
	return nil
}

// Stop closes the Redis connection
func (c *RedisCounter) Stop() {
	if err := c.client.Close(); err != nil {
		c.logger.Error("Failed to close Redis client", zap.Error(err))
	}
}
