// Package counter provides a Redis-backed view counter that absorbs
// hot-path increments and flushes them into the repository in batches.
package counter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	countKeyPrefix = "mediaref:views:"
	dirtySetKey    = "mediaref:views:dirty"
)

// ApplyFunc persists an accumulated delta for one content item. The
// repository's IncrementViews satisfies it directly.
type ApplyFunc func(ctx context.Context, id uuid.UUID, delta int64) error

// RedisCounter counts views in Redis and periodically drains the
// accumulated deltas into durable storage. Increments are a single INCR
// plus a dirty-set membership, so concurrent counting never loses votes.
type RedisCounter struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedis creates a counter on an existing Redis client.
func NewRedis(client *redis.Client, logger *slog.Logger) *RedisCounter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCounter{client: client, logger: logger}
}

// Increment adds one view for the given content item.
func (c *RedisCounter) Increment(ctx context.Context, id uuid.UUID) error {
	key := countKeyPrefix + id.String()
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.SAdd(ctx, dirtySetKey, id.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("increment view counter: %w", err)
	}
	return nil
}

// Flush drains every pending counter into apply. A delta whose apply call
// fails is credited back to Redis so no views are lost; the first failure
// is reported after the whole set has been attempted.
func (c *RedisCounter) Flush(ctx context.Context, apply ApplyFunc) error {
	ids, err := c.client.SMembers(ctx, dirtySetKey).Result()
	if err != nil {
		return fmt.Errorf("read dirty view set: %w", err)
	}

	var firstErr error
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.logger.Warn("dropping malformed counter key", "id", raw)
			c.client.SRem(ctx, dirtySetKey, raw)
			continue
		}

		key := countKeyPrefix + raw
		delta, err := c.client.GetDel(ctx, key).Int64()
		if err == redis.Nil {
			c.client.SRem(ctx, dirtySetKey, raw)
			continue
		}
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("read view counter %s: %w", raw, err)
			}
			continue
		}
		if delta == 0 {
			c.client.SRem(ctx, dirtySetKey, raw)
			continue
		}

		if err := apply(ctx, id, delta); err != nil {
			// Credit the delta back; it will be retried next flush.
			c.client.IncrBy(ctx, key, delta)
			if firstErr == nil {
				firstErr = fmt.Errorf("apply view delta for %s: %w", raw, err)
			}
			continue
		}
		c.client.SRem(ctx, dirtySetKey, raw)
	}
	return firstErr
}

// Run flushes on the given interval until ctx is cancelled, then performs
// one final flush.
func (c *RedisCounter) Run(ctx context.Context, interval time.Duration, apply ApplyFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := c.Flush(flushCtx, apply); err != nil {
				c.logger.Error("final view counter flush failed", "error", err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := c.Flush(ctx, apply); err != nil {
				c.logger.Warn("view counter flush failed", "error", err)
			}
		}
	}
}
