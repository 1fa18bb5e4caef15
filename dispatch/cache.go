package dispatch

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// CacheEntry is a previously computed generation result owned by the
// ResultCache. insertedAt drives TTL expiry (measured from insertion, never
// refreshed by hits — a freshness guarantee, not a popularity guarantee);
// lastAccess drives LRU eviction.
type CacheEntry struct {
	Result     InferenceResult
	insertedAt time.Time
	lastAccess int64 // monotonic counter for LRU ordering
}

// ResultCache is a bounded, time-expiring store mapping request fingerprints
// to generation results. Eviction is least-recently-accessed-first once the
// capacity is reached; expiry is checked lazily on lookup. Safe for
// concurrent use.
type ResultCache struct {
	mu       sync.Mutex
	entries  map[string]*CacheEntry
	capacity int
	ttl      time.Duration
	clock    int64 // monotonic counter for LRU ordering
	now      func() time.Time
}

// NewResultCache creates a cache with the given capacity and entry TTL.
func NewResultCache(capacity int, ttl time.Duration) *ResultCache {
	if capacity <= 0 {
		panic(fmt.Sprintf("NewResultCache: capacity must be > 0, got %d", capacity))
	}
	if ttl <= 0 {
		panic(fmt.Sprintf("NewResultCache: ttl must be > 0, got %v", ttl))
	}
	return &ResultCache{
		entries:  make(map[string]*CacheEntry),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Lookup returns the cached result for key, or false if absent or expired.
// Expired entries are purged here rather than eagerly. A hit refreshes the
// entry's LRU marker but not its insertion timestamp.
func (c *ResultCache) Lookup(key string) (InferenceResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return InferenceResult{}, false
	}
	if c.now().Sub(entry.insertedAt) > c.ttl {
		delete(c.entries, key)
		logrus.Debugf("cache entry %.8s expired after %v", key, c.ttl)
		return InferenceResult{}, false
	}
	c.clock++
	entry.lastAccess = c.clock
	return entry.Result, true
}

// Insert stores a result under key with a fresh insertion timestamp,
// evicting the least-recently-accessed entry first if the cache is at
// capacity. Overwriting an existing key refreshes both value and timestamp.
func (c *ResultCache) Insert(key string, result InferenceResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock++
	if entry, exists := c.entries[key]; exists {
		entry.Result = result
		entry.insertedAt = c.now()
		entry.lastAccess = c.clock
		return
	}
	if len(c.entries) >= c.capacity {
		c.evictOldest()
	}
	c.entries[key] = &CacheEntry{
		Result:     result,
		insertedAt: c.now(),
		lastAccess: c.clock,
	}
}

// Clear removes all entries unconditionally.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*CacheEntry)
	logrus.Debug("result cache cleared")
}

// Len returns the current number of entries, expired or not.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldest removes the least recently accessed entry. Uses monotonic
// access counters so there is always a unique minimum (no tie-breaking
// needed). Caller must hold c.mu.
func (c *ResultCache) evictOldest() {
	var oldestKey string
	oldestAccess := int64(math.MaxInt64)
	for k, e := range c.entries {
		if e.lastAccess < oldestAccess {
			oldestAccess = e.lastAccess
			oldestKey = k
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		logrus.Debugf("cache at capacity %d, evicted LRU entry %.8s", c.capacity, oldestKey)
	}
}
