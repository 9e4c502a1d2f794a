package transfer

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps destination kinds to their adapters
type Registry struct {
	mu       sync.RWMutex
	adapters map[DestinationKind]Adapter
}

// NewRegistry creates a registry holding the given adapters
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[DestinationKind]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for its kind
func (r *Registry) Register(adapter Adapter) {
	if adapter == nil {
		panic("transfer: Register adapter is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Kind()] = adapter
}

// Lookup returns the adapter for kind or an UnsupportedDestination error
func (r *Registry) Lookup(kind DestinationKind) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[kind]
	if !ok {
		return nil, NewUnsupportedDestinationError(kind).
			WithRemediation(fmt.Sprintf("supported destinations: %v", r.kindsLocked()))
	}
	return adapter, nil
}

// Kinds returns the registered kinds sorted by name
func (r *Registry) Kinds() []DestinationKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.kindsLocked()
}

func (r *Registry) kindsLocked() []DestinationKind {
	kinds := make([]DestinationKind, 0, len(r.adapters))
	for k := range r.adapters {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
