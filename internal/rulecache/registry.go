package rulecache

import (
	"sort"
	"sync"
)

// Registry owns one Cache per context name
type Registry struct {
	mu     sync.RWMutex
	caches map[string]*Cache
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{caches: make(map[string]*Cache)}
}

// For returns the cache for contextName, creating it on first use
func (r *Registry) For(contextName string) *Cache {
	r.mu.RLock()
	c, ok := r.caches[contextName]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.caches[contextName]; ok {
		return c
	}
	c = New(contextName)
	r.caches[contextName] = c
	return c
}

// Lookup returns the cache for contextName without creating it
func (r *Registry) Lookup(contextName string) (*Cache, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caches[contextName]
	return c, ok
}

// Contexts returns the known context names, sorted
func (r *Registry) Contexts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.caches))
	for name := range r.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invalidate clears the cache of contextName so the next request reloads it
func (r *Registry) Invalidate(contextName string) {
	if c, ok := r.Lookup(contextName); ok {
		c.Clear()
	}
}

// Stats returns the stats of every context, sorted by name
func (r *Registry) Stats() []Stats {
	names := r.Contexts()
	out := make([]Stats, 0, len(names))
	for _, name := range names {
		if c, ok := r.Lookup(name); ok {
			out = append(out, c.Stats())
		}
	}
	return out
}
