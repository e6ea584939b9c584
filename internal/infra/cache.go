package infra

import (
	"sort"
	"sync"
	"time"
)

// Cache size limits to prevent unbounded memory growth
const (
	DefaultMaxCacheEntries = 1000            // Maximum number of cache entries
	DefaultCacheCleanup    = 5 * time.Minute // How often to run cache cleanup
)

// CacheEntry holds cached data with expiration and LRU tracking
type CacheEntry struct {
	Data       any
	ExpiresAt  time.Time
	AccessedAt time.Time
}

// Cache is a size-bounded TTL cache. An entry is usable only while now < ExpiresAt.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*CacheEntry
	maxEntries int
	now        Clock

	stopCh   chan struct{}
	stopOnce sync.Once
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCacheClock replaces the wall clock, mostly for tests.
func WithCacheClock(clock Clock) CacheOption {
	return func(c *Cache) {
		c.now = clock
	}
}

// NewCache creates a cache holding at most maxEntries values.
// A background sweep removes expired entries until Close is called.
func NewCache(maxEntries int, opts ...CacheOption) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxCacheEntries
	}
	c := &Cache{
		entries:    make(map[string]*CacheEntry),
		maxEntries: maxEntries,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.cleanupLoop()
	return c
}

// Get retrieves a cached value if it exists and hasn't expired
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ce, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	now := c.now()
	if !now.Before(ce.ExpiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	ce.AccessedAt = now
	return ce.Data, true
}

// Set stores a value that expires ttl from now.
func (c *Cache) Set(key string, data any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = &CacheEntry{
		Data:       data,
		ExpiresAt:  now.Add(ttl),
		AccessedAt: now,
	}
	if over := len(c.entries) - c.maxEntries; over > 0 {
		c.evictLRU(over + c.maxEntries/10)
	}
}

// Delete removes a key from the cache
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Size returns the current number of entries in the cache
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the background cleanup goroutine
func (c *Cache) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(DefaultCacheCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// cleanup removes expired entries.
func (c *Cache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, ce := range c.entries {
		if !now.Before(ce.ExpiresAt) {
			delete(c.entries, k)
		}
	}
}

// evictLRU removes the count least recently used entries. Caller holds mu.
func (c *Cache) evictLRU(count int) {
	type entryInfo struct {
		key        string
		accessedAt time.Time
	}
	infos := make([]entryInfo, 0, len(c.entries))
	for k, ce := range c.entries {
		infos = append(infos, entryInfo{key: k, accessedAt: ce.AccessedAt})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].accessedAt.Before(infos[j].accessedAt)
	})
	for i := 0; i < count && i < len(infos); i++ {
		delete(c.entries, infos[i].key)
	}
}
