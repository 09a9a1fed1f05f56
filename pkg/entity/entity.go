// Package entity is the runtime form of a model instance: a typed property
// bag with identity and dirty tracking.
package entity

import (
	"sort"

	"github.com/leapstack-labs/leaporm/pkg/model"
)

// Entity is one instance of a model.
//
// Reference and multi-valued reference properties start unloaded when an
// entity is read from storage. Callers check IsLoaded or go through the
// query engine's Load before reading them with Related.
type Entity struct {
	def    *model.Definition
	values map[string]Value
	loaded map[string]bool
	dirty  map[string]bool
	isNew  bool
}

// New creates an unsaved entity.
func New(def *model.Definition) *Entity {
	e := newEntity(def)
	e.isNew = true
	return e
}

// Existing creates an entity representing a stored row, as done by
// hydration. Its values are filled through Init.
func Existing(def *model.Definition) *Entity {
	return newEntity(def)
}

func newEntity(def *model.Definition) *Entity {
	return &Entity{
		def:    def,
		values: make(map[string]Value),
		loaded: make(map[string]bool),
		dirty:  make(map[string]bool),
	}
}

// Model returns the model name.
func (e *Entity) Model() string { return e.def.Name }

// Definition returns the model definition the entity was created with.
func (e *Entity) Definition() *model.Definition { return e.def }

// IsNew reports whether the entity has not been stored yet.
func (e *Entity) IsNew() bool { return e.isNew }

// IsDirty reports whether any property changed since the last save.
func (e *Entity) IsDirty() bool { return len(e.dirty) > 0 }

// IsPropertyDirty reports whether one property changed since the last save.
func (e *Entity) IsPropertyDirty(name string) bool { return e.dirty[name] }

// DirtyProperties returns the changed property names, sorted.
func (e *Entity) DirtyProperties() []string {
	out := make([]string, 0, len(e.dirty))
	for name := range e.dirty {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// MarkSaved clears dirty state and marks the entity as stored.
func (e *Entity) MarkSaved() {
	e.isNew = false
	e.dirty = make(map[string]bool)
}

// MarkClean clears the dirty flag of the given properties.
func (e *Entity) MarkClean(names ...string) {
	for _, name := range names {
		delete(e.dirty, name)
	}
}

// RefModel implements Ref.
func (e *Entity) RefModel() string { return e.def.Name }

// RefKey implements Ref.
func (e *Entity) RefKey() Key { return e.Key() }

// Key returns the primary-key values. Unset components are nil.
func (e *Entity) Key() Key {
	key := make(Key, len(e.def.PrimaryKey))
	for i, name := range e.def.PrimaryKey {
		if v, ok := e.values[name].(Scalar); ok {
			key[i] = v.V
		}
	}
	return key
}

// Value returns the raw value of a property.
func (e *Entity) Value(name string) (Value, bool) {
	v, ok := e.values[name]
	return v, ok
}

// IsLoaded reports whether a property holds its full content.
func (e *Entity) IsLoaded(name string) bool { return e.loaded[name] }

func (e *Entity) property(name string) (*model.Property, error) {
	p, ok := e.def.Property(name)
	if !ok {
		return nil, NewPropertyError(e.def.Name, name, ErrUnknownProperty)
	}
	return p, nil
}

func (e *Entity) writable(p *model.Property) error {
	if e.isNew {
		return nil
	}
	if p.PrimaryKey || p.ReadOnly {
		return NewPropertyError(e.def.Name, p.Name, ErrReadOnly)
	}
	return nil
}

// Get returns a single-valued stored property. Unset properties are nil.
func (e *Entity) Get(name string) (any, error) {
	p, err := e.property(name)
	if err != nil {
		return nil, err
	}
	switch {
	case p.IsReference():
		return nil, NewPropertyError(e.def.Name, name, ErrIsReference)
	case p.Multiple:
		return nil, NewPropertyError(e.def.Name, name, ErrNotSingleValued)
	}
	if v, ok := e.values[name].(Scalar); ok {
		return v.V, nil
	}
	return nil, nil
}

// Set changes a single-valued stored property and marks it dirty.
func (e *Entity) Set(name string, value any) error {
	p, err := e.property(name)
	if err != nil {
		return err
	}
	switch {
	case p.IsReference():
		return NewPropertyError(e.def.Name, name, ErrIsReference)
	case p.Multiple:
		return NewPropertyError(e.def.Name, name, ErrNotSingleValued)
	}
	if err := e.writable(p); err != nil {
		return err
	}
	e.values[name] = Scalar{V: value}
	e.loaded[name] = true
	e.dirty[name] = true
	return nil
}

// Values returns a multi-valued stored property.
func (e *Entity) Values(name string) ([]any, error) {
	p, err := e.property(name)
	if err != nil {
		return nil, err
	}
	switch {
	case p.IsReference():
		return nil, NewPropertyError(e.def.Name, name, ErrIsReference)
	case !p.Multiple:
		return nil, NewPropertyError(e.def.Name, name, ErrNotMultiValued)
	case !e.loaded[name] && !e.isNew:
		return nil, NewPropertyError(e.def.Name, name, ErrNotLoaded)
	}
	if v, ok := e.values[name].(MultiValue); ok {
		return append([]any(nil), v.Values...), nil
	}
	return nil, nil
}

// SetValues replaces a multi-valued stored property and marks it dirty.
func (e *Entity) SetValues(name string, values []any) error {
	p, err := e.property(name)
	if err != nil {
		return err
	}
	switch {
	case p.IsReference():
		return NewPropertyError(e.def.Name, name, ErrIsReference)
	case !p.Multiple:
		return NewPropertyError(e.def.Name, name, ErrNotMultiValued)
	}
	if err := e.writable(p); err != nil {
		return err
	}
	e.values[name] = MultiValue{Values: append([]any(nil), values...)}
	e.loaded[name] = true
	e.dirty[name] = true
	return nil
}

// Ref returns the current pointer held by a single-valued reference. It is
// available before loading when the row carried the foreign key.
func (e *Entity) Ref(name string) (Ref, error) {
	p, err := e.property(name)
	if err != nil {
		return nil, err
	}
	switch {
	case !p.IsReference():
		return nil, NewPropertyError(e.def.Name, name, ErrNotReference)
	case p.Multiple:
		return nil, NewPropertyError(e.def.Name, name, ErrNotSingleValued)
	}
	if v, ok := e.values[name].(Reference); ok {
		return v.Ref, nil
	}
	return nil, nil
}

// SetRef points a single-valued reference at another entity or key. A nil
// ref clears it.
func (e *Entity) SetRef(name string, ref Ref) error {
	p, err := e.property(name)
	if err != nil {
		return err
	}
	switch {
	case !p.IsReference():
		return NewPropertyError(e.def.Name, name, ErrNotReference)
	case p.Multiple:
		return NewPropertyError(e.def.Name, name, ErrNotSingleValued)
	}
	if err := e.writable(p); err != nil {
		return err
	}
	e.values[name] = Reference{Ref: ref}
	_, materialized := ref.(*Entity)
	e.loaded[name] = ref == nil || materialized
	e.dirty[name] = true
	return nil
}

// SetRefs replaces a multi-valued reference and marks it dirty.
func (e *Entity) SetRefs(name string, refs []Ref) error {
	p, err := e.property(name)
	if err != nil {
		return err
	}
	switch {
	case !p.IsReference():
		return NewPropertyError(e.def.Name, name, ErrNotReference)
	case !p.Multiple:
		return NewPropertyError(e.def.Name, name, ErrNotMultiValued)
	}
	if err := e.writable(p); err != nil {
		return err
	}
	e.values[name] = References{Refs: append([]Ref(nil), refs...)}
	e.loaded[name] = false
	e.dirty[name] = true
	return nil
}

// Related returns the loaded target of a single-valued reference, or nil
// for a null reference.
func (e *Entity) Related(name string) (*Entity, error) {
	ref, err := e.Ref(name)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		if e.loaded[name] || e.isNew {
			return nil, nil
		}
		return nil, NewPropertyError(e.def.Name, name, ErrNotLoaded)
	}
	target, ok := ref.(*Entity)
	if !ok {
		return nil, NewPropertyError(e.def.Name, name, ErrNotLoaded)
	}
	return target, nil
}

// RelatedAll returns the loaded targets of a multi-valued reference.
func (e *Entity) RelatedAll(name string) ([]*Entity, error) {
	p, err := e.property(name)
	if err != nil {
		return nil, err
	}
	switch {
	case !p.IsReference():
		return nil, NewPropertyError(e.def.Name, name, ErrNotReference)
	case !p.Multiple:
		return nil, NewPropertyError(e.def.Name, name, ErrNotMultiValued)
	case !e.loaded[name]:
		return nil, NewPropertyError(e.def.Name, name, ErrNotLoaded)
	}
	v, _ := e.values[name].(References)
	out := make([]*Entity, 0, len(v.Refs))
	for _, ref := range v.Refs {
		target, ok := ref.(*Entity)
		if !ok {
			return nil, NewPropertyError(e.def.Name, name, ErrNotLoaded)
		}
		out = append(out, target)
	}
	return out, nil
}

// Refs returns the pointers held by a multi-valued reference.
func (e *Entity) Refs(name string) ([]Ref, error) {
	p, err := e.property(name)
	if err != nil {
		return nil, err
	}
	switch {
	case !p.IsReference():
		return nil, NewPropertyError(e.def.Name, name, ErrNotReference)
	case !p.Multiple:
		return nil, NewPropertyError(e.def.Name, name, ErrNotMultiValued)
	}
	v, _ := e.values[name].(References)
	return append([]Ref(nil), v.Refs...), nil
}

// Init fills a property from storage without marking it dirty. Scalars and
// materialized references count as loaded; key-only references do not.
func (e *Entity) Init(name string, v Value) {
	e.values[name] = v
	switch val := v.(type) {
	case Scalar:
		e.loaded[name] = true
	case Reference:
		_, materialized := val.Ref.(*Entity)
		e.loaded[name] = materialized
	default:
		e.loaded[name] = false
	}
}

// Attach stores fully loaded content for a property without marking it
// dirty. Used by lazy loading.
func (e *Entity) Attach(name string, v Value) {
	e.values[name] = v
	e.loaded[name] = true
}
