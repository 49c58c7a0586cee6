package routing

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a TTL cache whose misses are loaded at most once per key at a time.
//
// Invalidate drops the entry and detaches any in-flight load, so a caller that asked for
// a refresh never receives the value that was being loaded when it asked.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry[V]
	gens    map[string]uint64
	ttl     time.Duration
	nowFn   func() time.Time

	group singleflight.Group
}

// NewCache returns a cache whose entries live for ttl. A ttl of zero never expires.
func NewCache[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]cacheEntry[V]),
		gens:    make(map[string]uint64),
		ttl:     ttl,
	}
}

func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.expired(entry) {
		var zero V
		return zero, false
	}
	return entry.value, true
}

func (c *Cache[V]) Set(key string, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry[V]{value: v, expiresAt: c.expiry()}
}

// Invalidate removes key. Loads already in flight for key are not stored.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.gens[key]++
	c.mu.Unlock()

	c.group.Forget(key)
}

// GetOrLoad returns the cached value for key, calling load on a miss. Concurrent misses
// for the same key share one load. The load runs detached from ctx cancellation so that
// one abandoned caller does not fail the others; ctx only bounds how long this caller waits.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	c.mu.RLock()
	gen := c.gens[key]
	c.mu.RUnlock()

	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		v, err := load(loadCtx)
		if err != nil {
			return v, err
		}

		c.mu.Lock()
		if c.gens[key] == gen {
			c.entries[key] = cacheEntry[V]{value: v, expiresAt: c.expiry()}
		}
		c.mu.Unlock()
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

func (c *Cache[V]) expired(entry cacheEntry[V]) bool {
	return !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt)
}

func (c *Cache[V]) expiry() time.Time {
	if c.ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(c.ttl)
}

func (c *Cache[V]) now() time.Time {
	if c.nowFn != nil {
		return c.nowFn()
	}
	return time.Now()
}
