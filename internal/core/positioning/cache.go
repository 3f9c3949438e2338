package positioning

import (
	"sync"
	"time"

	"github.com/samirrijal/servezone/internal/core/domain"
)

// Cache is a TTL-bounded store of the last acquired point per key. Expiry is
// checked lazily on read; there is no background sweep.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]domain.CacheEntry
	defaultTTL time.Duration
	now        func() time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a Cache; a non-positive defaultTTL falls back to domain.DefaultTTL.
func NewCache(defaultTTL time.Duration, opts ...CacheOption) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = domain.DefaultTTL
	}
	c := &Cache{
		entries:    make(map[string]domain.CacheEntry),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultTTL returns the TTL applied when Put is given a non-positive ttl.
func (c *Cache) DefaultTTL() time.Duration { return c.defaultTTL }

// Get returns the live entry for key. Expired entries are evicted and
// reported as absent.
func (c *Cache) Get(key string) (domain.CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.CacheEntry{}, false
	}
	if e.Expired(c.now()) {
		delete(c.entries, key)
		return domain.CacheEntry{}, false
	}
	return e, true
}

// Put stores a fresh entry for key, replacing any previous one.
func (c *Cache) Put(key string, point domain.GeoPoint, ttl time.Duration, source domain.Source) domain.CacheEntry {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e := domain.CacheEntry{
		Point:        point,
		Source:       source,
		CapturedAt:   now,
		TTLExpiresAt: now.Add(ttl),
	}
	c.entries[key] = e
	return e
}

// Invalidate drops the entry for key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of stored entries, including expired ones not yet read.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
