package model

import (
	"sort"
	"sync"
)

// Registry is the shared set of compiled model definitions.
//
// Readers may run concurrently. Writers (a sync or hot-reload cycle) must be
// serialized by the caller: the registry guards its map, but a query that is
// already running keeps the definitions it resolved before the swap.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// AddModelDefinition registers a definition, replacing any definition with
// the same name wholesale.
func (r *Registry) AddModelDefinition(def *Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Name] = def
}

// RemoveModelDefinition removes a definition. It reports whether one was
// registered.
func (r *Registry) RemoveModelDefinition(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.defs[name]
	delete(r.defs, name)
	return ok
}

// GetModelDefinition returns a definition by name.
func (r *Registry) GetModelDefinition(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// AllModelDefinitions returns all definitions sorted by name.
func (r *Registry) AllModelDefinitions() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Replace swaps the whole registry content in one step.
func (r *Registry) Replace(defs []*Definition) {
	next := make(map[string]*Definition, len(defs))
	for _, def := range defs {
		next[def.Name] = def
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs = next
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}
