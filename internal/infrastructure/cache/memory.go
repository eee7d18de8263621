package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kushscan/kushscan/internal/domain"
)

// cacheItem represents a single shaped insight with its expiration
type cacheItem struct {
	Value      domain.InsightResponse
	Expiration time.Time
}

// MemoryCache is the thread-safe, fingerprint-keyed shared insight cache.
// Entries are idempotent re-derivations of the same generation, so
// concurrent writes for one fingerprint are last-write-wins.
type MemoryCache struct {
	data  map[string]cacheItem
	mutex sync.RWMutex
	now   func() time.Time
}

// NewMemoryCache creates a new in-memory cache.
func NewMemoryCache() *MemoryCache {
	cache := &MemoryCache{
		data: make(map[string]cacheItem),
		now:  time.Now,
	}

	// Background sweep removes entries lazy reads never touched
	go cache.cleanupExpired()

	return cache
}

// newMemoryCacheWithClock is the test constructor: injected clock, no sweep.
func newMemoryCacheWithClock(now func() time.Time) *MemoryCache {
	return &MemoryCache{
		data: make(map[string]cacheItem),
		now:  now,
	}
}

// Get retrieves a cached insight. A present-but-expired entry is deleted as
// a side effect of the read and reported as a miss.
func (c *MemoryCache) Get(ctx context.Context, key string) (*domain.InsightResponse, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	item, exists := c.data[key]
	if !exists {
		return nil, domain.ErrCacheMiss
	}

	if c.now().After(item.Expiration) {
		delete(c.data, key)
		return nil, domain.ErrCacheMiss
	}

	value := item.Value
	return &value, nil
}

// Set stores a shaped insight with TTL, overwriting unconditionally.
func (c *MemoryCache) Set(ctx context.Context, key string, value *domain.InsightResponse, ttl time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data[key] = cacheItem{
		Value:      *value,
		Expiration: c.now().Add(ttl),
	}

	return nil
}

// Delete removes an entry from the cache.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.data, key)
	return nil
}

// cleanupExpired removes expired entries from the cache periodically.
func (c *MemoryCache) cleanupExpired() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.mutex.Lock()
		now := c.now()
		for key, item := range c.data {
			if now.After(item.Expiration) {
				delete(c.data, key)
			}
		}
		c.mutex.Unlock()
	}
}

// Size returns the current number of items in the cache (for debugging/monitoring).
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.data)
}
