// Package cache holds the in-process live-price cache that fronts the
// per-card price lookup. It is not shared across instances and is rebuilt
// empty on restart; a miss always falls back to a fresh upstream fetch.
package cache

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// PriceCache is a bounded key/value cache with a uniform per-entry TTL.
// When an insert would exceed maxSize, the earliest-expiring entry is evicted
// first; with a uniform TTL that is the least-recently-inserted one. The
// bound is a soft memory limit, not a correctness requirement.
type PriceCache struct {
	store   *gocache.Cache
	maxSize int
	mu      sync.Mutex
}

func New(ttl time.Duration, maxSize int) *PriceCache {
	return &PriceCache{
		store:   gocache.New(ttl, 2*ttl),
		maxSize: maxSize,
	}
}

// Get returns the cached value, or ok=false if absent or expired.
func (c *PriceCache) Get(key string) (interface{}, bool) {
	return c.store.Get(key)
}

func (c *PriceCache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store.Get(key); !exists && c.store.ItemCount() >= c.maxSize {
		c.evictOldest()
	}
	c.store.SetDefault(key, value)
}

func (c *PriceCache) Len() int {
	return c.store.ItemCount()
}

// evictOldest removes the entry closest to expiry. Items() also drops
// already-expired entries from the view, so the count can only shrink.
func (c *PriceCache) evictOldest() {
	var oldestKey string
	var oldestExp int64
	for key, item := range c.store.Items() {
		if oldestKey == "" || item.Expiration < oldestExp {
			oldestKey = key
			oldestExp = item.Expiration
		}
	}
	if oldestKey != "" {
		c.store.Delete(oldestKey)
	}
}
