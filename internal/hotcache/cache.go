package hotcache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"cardcat/internal/metrics"
)

// DefaultCapacity bounds caches constructed with a non-positive size.
const DefaultCapacity = 500

// Cache is a named, size bounded LRU map safe for concurrent use.
type Cache[V any] struct {
	name  string
	inner *lru.Cache[string, V]
}

// New constructs a cache holding at most capacity entries.
func New[V any](name string, capacity int) *Cache[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	// New only fails for a non-positive size.
	inner, _ := lru.New[string, V](capacity)
	return &Cache[V]{name: name, inner: inner}
}

// Get returns the value for key and marks it most recently used.
func (c *Cache[V]) Get(key string) (V, bool) {
	v, ok := c.inner.Get(key)
	if ok {
		metrics.CacheHit(c.name)
	} else {
		metrics.CacheMiss(c.name)
	}
	return v, ok
}

// Add stores value under key, evicting the least recently used entry at capacity.
func (c *Cache[V]) Add(key string, value V) {
	if evicted := c.inner.Add(key, value); evicted {
		metrics.CacheEvicted(c.name, 1)
	}
}

// Len returns the number of entries.
func (c *Cache[V]) Len() int {
	return c.inner.Len()
}

// Purge removes every entry.
func (c *Cache[V]) Purge() {
	if c.inner.Len() == 0 {
		return
	}
	c.inner.Purge()
	metrics.CachePurged(c.name)
}
