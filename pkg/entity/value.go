package entity

import (
	"fmt"
	"strings"
)

// Key holds primary-key values in key order.
type Key []any

// String returns a canonical form of the key, usable as a map key.
// Integer kinds of the same value encode identically.
func (k Key) String() string {
	parts := make([]string, len(k))
	for i, v := range k {
		switch n := v.(type) {
		case int:
			parts[i] = fmt.Sprint(int64(n))
		case int32:
			parts[i] = fmt.Sprint(int64(n))
		case []byte:
			parts[i] = string(n)
		default:
			parts[i] = fmt.Sprint(v)
		}
	}
	return strings.Join(parts, "\x1f")
}

// Complete reports whether every component is set.
func (k Key) Complete() bool {
	if len(k) == 0 {
		return false
	}
	for _, v := range k {
		if v == nil {
			return false
		}
	}
	return true
}

// Ref points at an entity: either a materialized *Entity or an
// EntityReference carrying only the key.
type Ref interface {
	RefModel() string
	RefKey() Key
}

// EntityReference is an unloaded pointer to an entity.
type EntityReference struct {
	Model string
	Key   Key
}

// RefModel implements Ref.
func (r EntityReference) RefModel() string { return r.Model }

// RefKey implements Ref.
func (r EntityReference) RefKey() Key { return r.Key }

// Value is the content of one entity property.
type Value interface {
	isValue()
}

// Scalar is a single-valued stored property.
type Scalar struct{ V any }

// MultiValue is a multi-valued stored property.
type MultiValue struct{ Values []any }

// Reference is a single-valued reference. A nil Ref is a null reference.
type Reference struct{ Ref Ref }

// References is a multi-valued reference.
type References struct{ Refs []Ref }

func (Scalar) isValue()     {}
func (MultiValue) isValue() {}
func (Reference) isValue()  {}
func (References) isValue() {}
