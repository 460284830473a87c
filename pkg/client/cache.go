package client

import (
	"strings"
	"sync"
	"time"
)

// Cache is the query cache contract. Keys are namespaced by collection so
// mutations can invalidate whole key families by prefix.
type Cache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{})
	Invalidate(prefix string)
}

// CacheKey builds the cache key for a collection fetch. The full parameter
// tuple participates, so any page, limit, filter or sort change addresses a
// distinct entry.
func CacheKey(collection string, p ListParams) string {
	return collection + "?" + p.WithDefaults().encode()
}

// DetailCacheKey builds the cache key for a single-record fetch.
func DetailCacheKey(patientID string) string {
	return "patient:" + patientID
}

type cacheEntry struct {
	value   interface{}
	expires time.Time
}

// MemoryCache is an in-process TTL cache.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewMemoryCache builds a cache whose entries expire after ttl. A zero or
// negative ttl keeps entries until invalidated.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && c.now().After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *MemoryCache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := cacheEntry{value: value}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}
	c.entries[key] = e
}

// Invalidate drops every entry whose key starts with prefix.
func (c *MemoryCache) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}
