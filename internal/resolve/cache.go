package resolve

import (
	"sync"
	"sync/atomic"

	"github.com/metawrite/metawrite/pkg/types"
)

// CacheStats represents definition cache performance counters.
type CacheStats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

// DefinitionCache maps "namespace:key" to the resolved TypeDescriptor.
// Entries are populated lazily, never evicted and never mutated once set:
// a resolved type is treated as immutable truth for the process lifetime.
// Reads are concurrent; inserts take the write lock.
type DefinitionCache struct {
	mu      sync.RWMutex
	entries map[string]types.TypeDescriptor
	hits    atomic.Uint64
	misses  atomic.Uint64
}

// NewDefinitionCache creates an empty cache. Each coordinator owns its own
// cache instance rather than sharing ambient global state.
func NewDefinitionCache() *DefinitionCache {
	return &DefinitionCache{
		entries: make(map[string]types.TypeDescriptor),
	}
}

// Get returns the cached descriptor for the key.
func (c *DefinitionCache) Get(key string) (types.TypeDescriptor, bool) {
	c.mu.RLock()
	td, ok := c.entries[key]
	c.mu.RUnlock()

	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return td, ok
}

// Put inserts the descriptor if the key is absent. The first write wins;
// a racing duplicate resolution is benign because resolutions of the same
// key are idempotent.
func (c *DefinitionCache) Put(key string, td types.TypeDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists {
		c.entries[key] = td
	}
}

// Contains reports whether the key is cached without touching the hit and
// miss counters. Instrumentation peeks with this before a Get-counting
// resolution.
func (c *DefinitionCache) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[key]
	return ok
}

// Len returns the number of cached definitions.
func (c *DefinitionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of cache counters.
func (c *DefinitionCache) Stats() CacheStats {
	c.mu.RLock()
	entries := len(c.entries)
	c.mu.RUnlock()
	return CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: entries,
	}
}
