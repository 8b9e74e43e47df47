package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"costplan/internal/metrics"
)

// MemoryCache is a process-wide LRU cache with per-entry expiry and
// hit/miss counters.
type MemoryCache struct {
	mu       sync.Mutex
	maxSize  int
	entries  map[string]*list.Element
	eviction *list.List

	hits   atomic.Int64
	misses atomic.Int64

	// now is injectable for expiry tests
	now func() time.Time
}

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache creates an LRU cache holding at most maxSize entries.
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &MemoryCache{
		maxSize:  maxSize,
		entries:  make(map[string]*list.Element),
		eviction: list.New(),
		now:      time.Now,
	}
}

// Get retrieves a live entry, promoting it in the LRU order.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		metrics.CacheMisses.WithLabelValues("memory").Inc()
		return nil, false
	}
	entry := elem.Value.(*memoryEntry)
	if c.now().After(entry.expiresAt) {
		c.removeLocked(elem)
		c.misses.Add(1)
		metrics.CacheMisses.WithLabelValues("memory").Inc()
		return nil, false
	}

	c.eviction.MoveToFront(elem)
	c.hits.Add(1)
	metrics.CacheHits.WithLabelValues("memory").Inc()

	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true
}

// Set stores a value, evicting the least recently used entry when full.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	expires := c.now().Add(ttl)

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*memoryEntry)
		entry.value = stored
		entry.expiresAt = expires
		c.eviction.MoveToFront(elem)
		return nil
	}

	for len(c.entries) >= c.maxSize {
		oldest := c.eviction.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}

	elem := c.eviction.PushFront(&memoryEntry{key: key, value: stored, expiresAt: expires})
	c.entries[key] = elem
	return nil
}

// Delete removes a key.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem)
	}
	return nil
}

// Exists reports whether a live entry is present without promoting it.
func (c *MemoryCache) Exists(_ context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	if c.now().After(elem.Value.(*memoryEntry).expiresAt) {
		c.removeLocked(elem)
		return false
	}
	return true
}

// HitRate returns the hit ratio since process start.
func (c *MemoryCache) HitRate() float64 {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Len returns the current entry count.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*memoryEntry)
	delete(c.entries, entry.key)
	c.eviction.Remove(elem)
}
