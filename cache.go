package main

import (
	"sync"
	"time"
)

// ContextCache provides thread-safe caching for an assembled context
// string (the active-documents block). The cache holds one value and
// expires after a TTL; document mutations invalidate it explicitly.
type ContextCache struct {
	mu          sync.RWMutex
	value       string
	set         bool
	lastUpdated time.Time
	ttl         time.Duration
}

// NewContextCache creates a new context cache with the specified TTL
func NewContextCache(ttl time.Duration) *ContextCache {
	return &ContextCache{
		ttl: ttl,
	}
}

// Get retrieves the cached value if not expired.
// Returns the value and a boolean indicating a cache hit. An empty string
// is a valid cached value (no active documents).
func (c *ContextCache) Get() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.set {
		return "", false
	}
	if time.Since(c.lastUpdated) > c.ttl {
		return "", false
	}
	return c.value, true
}

// Set updates the cache with a new value
func (c *ContextCache) Set(value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = value
	c.set = true
	c.lastUpdated = time.Now()
}

// Invalidate clears the cache
func (c *ContextCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = ""
	c.set = false
	c.lastUpdated = time.Time{}
}

// GetLastUpdated returns when the cache was last updated
func (c *ContextCache) GetLastUpdated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.lastUpdated
}

// Global cache for the assembled active-documents context
var documentContextCache = NewContextCache(DocumentContextTTL)
