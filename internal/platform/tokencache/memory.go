package tokencache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	token   BearerToken
	evictAt time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	clock   func() time.Time
}

// MemoryOption customises a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithClock overrides the clock used to evaluate eviction deadlines.
func WithClock(clock func() time.Time) MemoryOption {
	return func(c *MemoryCache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewMemoryCache constructs an empty in-memory cache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]memoryEntry),
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, env string) (BearerToken, bool, error) {
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[env]
	if !ok {
		return BearerToken{}, false, nil
	}
	if !now.Before(entry.evictAt) {
		delete(c.entries, env)
		return BearerToken{}, false, nil
	}
	return entry.token, true, nil
}

// Put implements Cache.
func (c *MemoryCache) Put(_ context.Context, env string, token BearerToken, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[env] = memoryEntry{token: token, evictAt: now.Add(ttl)}
	return nil
}

// Delete implements Cache.
func (c *MemoryCache) Delete(_ context.Context, env string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, env)
	return nil
}
