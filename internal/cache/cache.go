// Package cache implements the narrow Cache seam spec §4.H and §6 call for:
// Get/SetWithTTL/Delete/DeletePrefix, with a process-local in-memory backend
// that is a drop-in default and an optional Redis-backed implementation when
// CACHE_URL is set. Grounded on the teacher's data/cache/cache.go (the narrow
// Get/Set interface with an optional Redis adapter selected by an env var) and
// internal/infrastructure/datafacade/cache/ttl_cache.go (the janitor-driven TTL
// map with Flush/Keys/ItemCount, generalized here to add prefix deletion for
// force-reconnect cache invalidation, spec §4.B).
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Cache is the seam every engine depends on. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	SetWithTTL(ctx context.Context, key string, val []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
	DeletePrefix(ctx context.Context, prefix string)
	Close()
}

// Kind-specific TTLs, per spec §4.H.
const (
	TTLSnapshotOpen   = 5 * time.Second
	TTLSnapshotClosed = 60 * time.Second
	TTLOutlook        = 60 * time.Second
	TTLDecision       = 60 * time.Second
)

// Key builds a "kind:symbol" cache key.
func Key(kind, symbol string) string {
	return kind + ":" + symbol
}

// New returns the in-memory backend, unconditionally — used directly by
// callers that want no Redis dependency (e.g. selftest).
func New() Cache {
	c := &memCache{items: make(map[string]item)}
	c.janitor = time.AfterFunc(time.Minute, c.sweep)
	return c
}

// NewAuto returns a Redis-backed cache when cacheURL is non-empty, otherwise
// the in-memory backend — mirroring the teacher's NewAuto() env-gated choice.
func NewAuto(cacheURL string) Cache {
	if cacheURL == "" {
		return New()
	}
	opt, err := redis.ParseURL(cacheURL)
	if err != nil {
		log.Warn().Err(err).Str("cache_url", cacheURL).Msg("invalid CACHE_URL, falling back to in-memory cache")
		return New()
	}
	return &redisCache{client: redis.NewClient(opt)}
}

// --- in-memory backend ---

type item struct {
	val []byte
	exp time.Time
}

type memCache struct {
	mu      sync.RWMutex
	items   map[string]item
	janitor *time.Timer
	closed  bool
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if !it.exp.IsZero() && time.Now().After(it.exp) {
		return nil, false
	}
	return it.val, true
}

func (c *memCache) SetWithTTL(_ context.Context, key string, val []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := item{val: append([]byte(nil), val...)}
	if ttl > 0 {
		it.exp = time.Now().Add(ttl)
	}
	c.items[key] = it
}

func (c *memCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *memCache) DeletePrefix(_ context.Context, prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.items {
		if strings.HasPrefix(k, prefix) {
			delete(c.items, k)
		}
	}
}

func (c *memCache) sweep() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	now := time.Now()
	for k, it := range c.items {
		if !it.exp.IsZero() && now.After(it.exp) {
			delete(c.items, k)
		}
	}
	c.mu.Unlock()
	c.janitor.Reset(time.Minute)
}

func (c *memCache) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.janitor.Stop()
}

// --- redis backend ---

type redisCache struct {
	client *redis.Client
}

func (r *redisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	v, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return v, true
}

func (r *redisCache) SetWithTTL(ctx context.Context, key string, val []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := r.client.Set(ctx, key, val, ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}

func (r *redisCache) Delete(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	r.client.Del(ctx, key)
}

func (r *redisCache) DeletePrefix(ctx context.Context, prefix string) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		r.client.Del(ctx, keys...)
	}
}

func (r *redisCache) Close() {
	_ = r.client.Close()
}
