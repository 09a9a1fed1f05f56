package datatype

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds data type definitions and value mappers.
type Registry struct {
	mu      sync.RWMutex
	types   map[string]*Definition
	mappers map[string]ValueMapper
}

// NewRegistry creates a registry preloaded with the builtin types.
func NewRegistry() *Registry {
	r := &Registry{
		types:   make(map[string]*Definition),
		mappers: make(map[string]ValueMapper),
	}
	for key, m := range builtinMappers() {
		r.mappers[key] = m
	}
	for _, def := range builtinTypes() {
		r.types[def.Name] = def
	}
	return r
}

// Register adds a type definition. Its mapper, if named, must already be
// registered.
func (r *Registry) Register(def *Definition) error {
	if def.Name == "" || def.Name == Virtual {
		return fmt.Errorf("invalid type name %q", def.Name)
	}
	if len(def.Fields) == 0 {
		return fmt.Errorf("type %s has no fields", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[def.Name]; exists {
		return fmt.Errorf("type %s already registered", def.Name)
	}
	if def.Mapper != "" {
		if _, ok := r.mappers[def.Mapper]; !ok {
			return fmt.Errorf("type %s references unknown value mapper %q", def.Name, def.Mapper)
		}
	}
	r.types[def.Name] = def
	return nil
}

// RegisterMapper adds or replaces a value mapper.
func (r *Registry) RegisterMapper(key string, m ValueMapper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappers[key] = m
}

// Lookup returns the definition for a type name.
func (r *Registry) Lookup(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.types[name]
	return def, ok
}

// Has reports whether name is a known type or the virtual sentinel.
func (r *Registry) Has(name string) bool {
	if name == Virtual {
		return true
	}
	_, ok := r.Lookup(name)
	return ok
}

// Names returns all registered type names (sorted).
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Encode converts a native value into storage values aligned with the
// type's fields. A nil value encodes to all-nil fields.
func (r *Registry) Encode(typeName string, value any) ([]any, error) {
	def, ok := r.Lookup(typeName)
	if !ok {
		return nil, fmt.Errorf("unknown data type %q", typeName)
	}
	if value == nil {
		return make([]any, len(def.Fields)), nil
	}

	m := r.mapper(def)
	if m == nil {
		return []any{value}, nil
	}
	out, err := m.ToStorage(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s value: %w", typeName, err)
	}
	if len(out) != len(def.Fields) {
		return nil, fmt.Errorf("mapper for %s returned %d fields, want %d", typeName, len(out), len(def.Fields))
	}
	return out, nil
}

// Decode converts storage values back into a native value.
func (r *Registry) Decode(typeName string, values []any) (any, error) {
	def, ok := r.Lookup(typeName)
	if !ok {
		return nil, fmt.Errorf("unknown data type %q", typeName)
	}
	if len(values) != len(def.Fields) {
		return nil, fmt.Errorf("type %s expects %d fields, got %d", typeName, len(def.Fields), len(values))
	}

	allNil := true
	for i, v := range values {
		if b, ok := v.([]byte); ok {
			values[i] = string(b)
		}
		if v != nil {
			allNil = false
		}
	}
	if allNil {
		return nil, nil
	}

	m := r.mapper(def)
	if m == nil {
		return values[0], nil
	}
	out, err := m.FromStorage(values)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s value: %w", typeName, err)
	}
	return out, nil
}

func (r *Registry) mapper(def *Definition) ValueMapper {
	if def.Mapper == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mappers[def.Mapper]
}
