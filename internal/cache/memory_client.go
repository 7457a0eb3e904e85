package cache

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryClient implements an in-process LRU cache with expiry.
type MemoryClient struct {
	lru *expirable.LRU[string, memoryEntry]
	now func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryClient creates an in-memory cache holding at most maxSize entries,
// none of which outlive maxTTL.
func NewMemoryClient(maxSize int, maxTTL time.Duration) *MemoryClient {
	if maxSize <= 0 {
		maxSize = 10000
	}
	if maxTTL <= 0 {
		maxTTL = 5 * time.Minute
	}
	return &MemoryClient{
		lru: expirable.NewLRU[string, memoryEntry](maxSize, nil, maxTTL),
		now: time.Now,
	}
}

// Get retrieves a value from cache.
func (c *MemoryClient) Get(_ context.Context, key string) ([]byte, error) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.lru.Remove(key)
		return nil, ErrCacheMiss
	}
	return entry.value, nil
}

// Set stores a value with TTL. A TTL above the client's maximum is capped by the LRU itself.
func (c *MemoryClient) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.lru.Add(key, entry)
	return nil
}

// Delete removes a value from cache.
func (c *MemoryClient) Delete(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// DeleteByPrefix removes all keys with the given prefix.
func (c *MemoryClient) DeleteByPrefix(_ context.Context, prefix string) error {
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
		}
	}
	return nil
}

// Len reports the number of live entries.
func (c *MemoryClient) Len() int {
	return c.lru.Len()
}

// Close purges the cache.
func (c *MemoryClient) Close() error {
	c.lru.Purge()
	return nil
}
