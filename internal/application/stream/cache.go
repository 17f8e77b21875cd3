package stream

import (
	"sync"

	"github.com/metahuman-os/cortex/pkg/domain"
)

// DocumentCache keeps parsed graph documents keyed by workflow name and
// store modification marker. A marker mismatch misses, so an updated
// workflow invalidates only its own entry.
type DocumentCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	marker string
	doc    *domain.GraphDocument
}

// NewDocumentCache creates an empty cache.
func NewDocumentCache() *DocumentCache {
	return &DocumentCache{entries: make(map[string]cacheEntry)}
}

// Get returns the cached document for name when its marker still matches.
func (c *DocumentCache) Get(name, marker string) (*domain.GraphDocument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	if !ok || e.marker != marker {
		return nil, false
	}
	return e.doc, true
}

// Put stores doc under name with its modification marker.
func (c *DocumentCache) Put(name, marker string, doc *domain.GraphDocument) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = cacheEntry{marker: marker, doc: doc}
}

// Invalidate drops the entry for name.
func (c *DocumentCache) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, name)
}

// Len returns the number of cached documents.
func (c *DocumentCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
