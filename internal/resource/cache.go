package resource

import "sync"

// Cache hands out one Resource per location so repeated lookups of the same
// image share its memoized bytes and dimensions.
//
// The cache is meant for long-lived callers such as the tool server, where
// the same location is inspected many times. Resources owned by art items are
// created directly and never come from a Cache.
//
// Cache is safe for concurrent use by multiple goroutines.
//
// # Memory Management
//
// Cached resources keep their bytes until removed via Evict or Clear.
type Cache struct {
	svc *Services

	mu        sync.RWMutex
	resources map[string]*Resource
}

// NewCache creates an empty cache whose resources use svc.
func NewCache(svc *Services) *Cache {
	return &Cache{
		svc:       svc,
		resources: make(map[string]*Resource),
	}
}

// Get returns the cached resource for location, creating it on first use.
//
// The resource is keyed by the exact location string: a relative and an
// absolute path to the same file are separate entries.
func (c *Cache) Get(location string) (*Resource, error) {
	c.mu.RLock()
	if r, ok := c.resources[location]; ok {
		c.mu.RUnlock()
		return r, nil
	}
	c.mu.RUnlock()

	r, err := FromLocation(c.svc, location)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.resources[location]; ok {
		return existing, nil
	}
	c.resources[location] = r
	return r, nil
}

// Len returns the number of cached resources.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.resources)
}

// Clear removes every resource from the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.resources = make(map[string]*Resource)
	c.mu.Unlock()
}

// Evict removes the resource for location. Unknown locations are ignored.
func (c *Cache) Evict(location string) {
	c.mu.Lock()
	delete(c.resources, location)
	c.mu.Unlock()
}
