package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"costplan/internal/logging"
)

// Layered composes the in-memory LRU in front of Redis. Reads check the
// memory tier first, then Redis (backfilling memory on hit). A failing
// Redis tier never takes reads down: the memory tier continues to serve,
// and absences are returned rather than stale values.
type Layered struct {
	memory *MemoryCache
	redis  *RedisCache
}

// NewLayered builds the two-tier cache. redis may be nil, in which case
// only the memory tier is active.
func NewLayered(memory *MemoryCache, redis *RedisCache) *Layered {
	return &Layered{memory: memory, redis: redis}
}

// Get checks memory then Redis.
func (c *Layered) Get(ctx context.Context, key string) ([]byte, bool) {
	if val, ok := c.memory.Get(ctx, key); ok {
		return val, true
	}
	if c.redis == nil {
		return nil, false
	}
	val, ok := c.redis.Get(ctx, key)
	if !ok {
		return nil, false
	}
	// Backfill the memory tier with a short TTL; the redis entry owns the
	// authoritative expiry.
	if err := c.memory.Set(ctx, key, val, time.Minute); err != nil {
		logging.FromContext(ctx).Warn("memory backfill failed", zap.String("key", key), zap.Error(err))
	}
	return val, true
}

// Set writes through both tiers. Write-through is idempotent, so a Redis
// failure is logged and the memory write stands.
func (c *Layered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.memory.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if c.redis != nil {
		if err := c.redis.Set(ctx, key, value, ttl); err != nil {
			logging.FromContext(ctx).Warn("redis set failed, memory tier retained",
				zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

// Delete removes the key from both tiers.
func (c *Layered) Delete(ctx context.Context, key string) error {
	if err := c.memory.Delete(ctx, key); err != nil {
		return err
	}
	if c.redis != nil {
		if err := c.redis.Delete(ctx, key); err != nil {
			logging.FromContext(ctx).Warn("redis delete failed", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

// Exists checks memory then Redis.
func (c *Layered) Exists(ctx context.Context, key string) bool {
	if c.memory.Exists(ctx, key) {
		return true
	}
	return c.redis != nil && c.redis.Exists(ctx, key)
}

// HitRate reports the memory tier's ratio; the memory tier fronts every
// read so it reflects overall effectiveness.
func (c *Layered) HitRate() float64 {
	return c.memory.HitRate()
}
