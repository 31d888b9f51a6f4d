package social

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teetime/backend/internal/models"
)

// DefaultStatusTTL bounds how stale a cached relationship status may get.
const DefaultStatusTTL = 15 * time.Second

// StatusCache stores viewer-relative relationship statuses keyed by
// (viewer, target). Writes replace the whole value, so concurrent writers are
// last-write-wins.
type StatusCache interface {
	Get(ctx context.Context, viewer, target string) (models.RelationshipStatus, bool)
	Set(ctx context.Context, viewer, target string, status models.RelationshipStatus, ttl time.Duration)
	Delete(ctx context.Context, viewer, target string)
}

type statusEntry struct {
	status  models.RelationshipStatus
	expires time.Time
}

// memorySweepEvery is how many writes pass between full sweeps of expired entries.
const memorySweepEvery = 256

// MemoryCache is a process-local StatusCache with per-entry expiry. Expired
// entries are dropped when read and by a periodic sweep on write.
type MemoryCache struct {
	mu     sync.RWMutex
	items  map[[2]string]statusEntry
	now    func() time.Time
	writes int
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		items: make(map[[2]string]statusEntry),
		now:   time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, viewer, target string) (models.RelationshipStatus, bool) {
	key := [2]string{viewer, target}
	now := c.now()

	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	if now.Before(entry.expires) {
		return entry.status, true
	}

	c.mu.Lock()
	// A concurrent Set may have refreshed the entry since the read.
	if current, ok := c.items[key]; ok && !now.Before(current.expires) {
		delete(c.items, key)
	}
	c.mu.Unlock()
	return "", false
}

func (c *MemoryCache) Set(_ context.Context, viewer, target string, status models.RelationshipStatus, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[[2]string{viewer, target}] = statusEntry{status: status, expires: now.Add(ttl)}
	c.writes++
	if c.writes >= memorySweepEvery {
		c.writes = 0
		for key, entry := range c.items {
			if !now.Before(entry.expires) {
				delete(c.items, key)
			}
		}
	}
}

func (c *MemoryCache) Delete(_ context.Context, viewer, target string) {
	c.mu.Lock()
	delete(c.items, [2]string{viewer, target})
	c.mu.Unlock()
}

// Len reports how many entries are held, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// WithNowFunc allows tests to override the time source.
func (c *MemoryCache) WithNowFunc(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// RedisCache shares relationship statuses between API replicas. Redis errors
// degrade to cache misses; the store stays authoritative.
type RedisCache struct {
	client redis.Cmdable
	prefix string
	onErr  func(op string, err error)
}

// NewRedisCache wraps a go-redis client. onErr may be nil.
func NewRedisCache(client redis.Cmdable, prefix string, onErr func(op string, err error)) *RedisCache {
	if prefix == "" {
		prefix = "teetime:rel"
	}
	if onErr == nil {
		onErr = func(string, error) {}
	}
	return &RedisCache{client: client, prefix: prefix, onErr: onErr}
}

func (c *RedisCache) key(viewer, target string) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, viewer, target)
}

func (c *RedisCache) Get(ctx context.Context, viewer, target string) (models.RelationshipStatus, bool) {
	val, err := c.client.Get(ctx, c.key(viewer, target)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		c.onErr("get", err)
		return "", false
	}
	return models.RelationshipStatus(val), true
}

func (c *RedisCache) Set(ctx context.Context, viewer, target string, status models.RelationshipStatus, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	if err := c.client.Set(ctx, c.key(viewer, target), string(status), ttl).Err(); err != nil {
		c.onErr("set", err)
	}
}

func (c *RedisCache) Delete(ctx context.Context, viewer, target string) {
	if err := c.client.Del(ctx, c.key(viewer, target)).Err(); err != nil {
		c.onErr("delete", err)
	}
}
