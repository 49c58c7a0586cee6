package controlplane

import (
	"sync"
	"time"

	"github.com/aponysus/regone/policy"
)

type cacheEntry struct {
	policy    policy.RetryPolicy
	expiresAt time.Time
	found     bool
}

// PolicyCache is a TTL cache of policies, including negative entries for missing keys.
type PolicyCache struct {
	mu      sync.RWMutex
	entries map[policy.PolicyKey]cacheEntry
	nowFn   func() time.Time
}

func NewPolicyCache() *PolicyCache {
	return &PolicyCache{
		entries: make(map[policy.PolicyKey]cacheEntry),
	}
}

// Get returns the cached policy. ok is false when the entry is absent or expired;
// missing is true when the entry records that the key has no policy.
func (c *PolicyCache) Get(key policy.PolicyKey) (pol policy.RetryPolicy, ok bool, missing bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists || c.now().After(entry.expiresAt) {
		return policy.RetryPolicy{}, false, false
	}
	return entry.policy, true, !entry.found
}

func (c *PolicyCache) Set(key policy.PolicyKey, pol policy.RetryPolicy, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{policy: pol, expiresAt: c.now().Add(ttl), found: true}
}

// SetMissing records that key has no policy for ttl.
func (c *PolicyCache) SetMissing(key policy.PolicyKey, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{expiresAt: c.now().Add(ttl)}
}

func (c *PolicyCache) Invalidate(key policy.PolicyKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *PolicyCache) now() time.Time {
	if c.nowFn != nil {
		return c.nowFn()
	}
	return time.Now()
}
