package etl

import (
	"sort"
	"sync"
)

// Registry owns one Orchestrator per dashboard.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Orchestrator
	factory func(id string) *Orchestrator
}

// NewRegistry creates a registry building orchestrators with factory.
func NewRegistry(factory func(id string) *Orchestrator) *Registry {
	return &Registry{
		entries: make(map[string]*Orchestrator),
		factory: factory,
	}
}

// Get returns the orchestrator of a dashboard, creating it on first use.
func (r *Registry) Get(id string) *Orchestrator {
	r.mu.RLock()
	if o, ok := r.entries[id]; ok {
		r.mu.RUnlock()
		return o
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double check in case another goroutine created it while we waited
	if o, ok := r.entries[id]; ok {
		return o
	}
	o := r.factory(id)
	r.entries[id] = o
	return o
}

// Lookup returns an existing orchestrator without creating one.
func (r *Registry) Lookup(id string) (*Orchestrator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.entries[id]
	return o, ok
}

// Remove tears down a dashboard. It reports whether it existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	o, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if ok {
		o.Close()
	}
	return ok
}

// IDs lists the live dashboards.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close tears down every dashboard.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*Orchestrator)
	r.mu.Unlock()

	for _, o := range entries {
		o.Close()
	}
}
