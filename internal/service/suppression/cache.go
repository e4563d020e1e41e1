package suppression

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/mailtrace/internal/pkg/logger"
)

// Cache is a read-through Redis cache for suppression lookups. It keeps
// the bulk-send path off Postgres: both positive and negative answers are
// cached with a short TTL, and writes through Add/Remove update it
// eagerly. Cache failures degrade to repository reads, never to errors.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCache creates a suppression cache. A zero ttl defaults to 5 minutes.
func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

func key(email string) string { return "suppression:" + email }

// Get returns (suppressed, true) on a cache hit, (_, false) on miss or
// Redis error.
func (c *Cache) Get(ctx context.Context, email string) (bool, bool) {
	val, err := c.rdb.Get(ctx, key(email)).Result()
	if err == redis.Nil {
		return false, false
	}
	if err != nil {
		logger.Warn("suppression cache read failed", "error", err)
		return false, false
	}
	return val == "1", true
}

// Set records the suppression state for an email.
func (c *Cache) Set(ctx context.Context, email string, suppressed bool) {
	val := "0"
	if suppressed {
		val = "1"
	}
	if err := c.rdb.Set(ctx, key(email), val, c.ttl).Err(); err != nil {
		logger.Warn("suppression cache write failed", "error", err)
	}
}

// Invalidate drops the cached state for an email.
func (c *Cache) Invalidate(ctx context.Context, email string) {
	if err := c.rdb.Del(ctx, key(email)).Err(); err != nil {
		logger.Warn("suppression cache invalidate failed", "error", err)
	}
}
