// Package model holds compiled model definitions, the compiler that builds
// them from raw declarative maps, the shared definition registry, and the
// persisted snapshot form.
package model

import (
	"fmt"

	"github.com/leapstack-labs/leaporm/pkg/datatype"
)

// Generation is a primary-key or value generation strategy.
type Generation string

// Generation strategies.
const (
	GenerationNone Generation = ""
	GenerationAuto Generation = "auto" // backend-assigned, auto-increment
	GenerationUUID Generation = "uuid" // client-assigned random UUID
)

// Permissions understood by security rules.
const (
	PermissionRead   = "read"
	PermissionCreate = "create"
	PermissionUpdate = "update"
	PermissionDelete = "delete"
)

// SecurityRule grants permissions on a model to a role. Filter is an
// opaque row-level predicate passed through to consumers.
type SecurityRule struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
	Filter      string   `json:"filter,omitempty"`
}

// PathSegment is one hop of an indirect reference. Property is the
// reference on the previous hop leading to Type; Forward is the reference
// on Type leading to the next hop.
type PathSegment struct {
	Type     string `json:"type"`
	Property string `json:"property,omitempty"`
	Forward  string `json:"forward,omitempty"`
}

// Reference describes a property's pointer to another model.
type Reference struct {
	Target  string        `json:"target"`
	Reverse string        `json:"reverse,omitempty"`
	Path    []PathSegment `json:"path,omitempty"`
	Select  string        `json:"select,omitempty"`
}

// IsDerived reports whether the reference is reached through a path and
// therefore has no storage of its own.
func (r *Reference) IsDerived() bool {
	return len(r.Path) > 0
}

// Property is a compiled property definition. Treat as read-only once it
// belongs to a registered Definition.
type Property struct {
	Model      string
	Name       string
	Type       string
	Required   bool
	Multiple   bool
	PrimaryKey bool
	ReadOnly   bool
	Searchable bool
	Default    any
	Generation Generation
	Size       *int
	Size2      *int
	Reference  *Reference
	Comment    string
	Inferred   bool // added as the reverse side of another model's reference
}

// IsVirtual reports whether the property has no storage column of its own.
func (p *Property) IsVirtual() bool {
	return p.Type == datatype.Virtual
}

// IsReference reports whether the property points at another model.
func (p *Property) IsReference() bool {
	return p.Reference != nil
}

// QualifiedName returns "Model.property".
func (p *Property) QualifiedName() string {
	return p.Model + "." + p.Name
}

func (p *Property) clone() *Property {
	c := *p
	if p.Size != nil {
		n := *p.Size
		c.Size = &n
	}
	if p.Size2 != nil {
		n := *p.Size2
		c.Size2 = &n
	}
	if p.Reference != nil {
		ref := *p.Reference
		ref.Path = append([]PathSegment(nil), p.Reference.Path...)
		c.Reference = &ref
	}
	return &c
}

// Definition is a compiled model.
type Definition struct {
	Name               string
	Plural             string
	FriendlyName       string
	FriendlyPluralName string
	PrimaryKey         []string
	Security           []SecurityRule
	Config             map[string]any

	properties []*Property
	index      map[string]int
}

// NewDefinition creates an empty definition.
func NewDefinition(name string) *Definition {
	return &Definition{Name: name, index: make(map[string]int)}
}

// Properties returns the properties in declaration order.
func (d *Definition) Properties() []*Property {
	out := make([]*Property, len(d.properties))
	copy(out, d.properties)
	return out
}

// Property returns a property by name.
func (d *Definition) Property(name string) (*Property, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return d.properties[i], true
}

// AddProperty appends a property. Names are unique within a model.
func (d *Definition) AddProperty(p *Property) error {
	if d.index == nil {
		d.index = make(map[string]int)
	}
	if _, exists := d.index[p.Name]; exists {
		return fmt.Errorf("property %s.%s already defined", d.Name, p.Name)
	}
	p.Model = d.Name
	d.index[p.Name] = len(d.properties)
	d.properties = append(d.properties, p)
	return nil
}

// PrimaryKeyProperties returns the primary-key properties in key order.
func (d *Definition) PrimaryKeyProperties() []*Property {
	out := make([]*Property, 0, len(d.PrimaryKey))
	for _, name := range d.PrimaryKey {
		if p, ok := d.Property(name); ok {
			out = append(out, p)
		}
	}
	return out
}

// Clone returns a deep copy, used when a registered definition must be
// changed and re-registered.
func (d *Definition) Clone() *Definition {
	c := NewDefinition(d.Name)
	c.Plural = d.Plural
	c.FriendlyName = d.FriendlyName
	c.FriendlyPluralName = d.FriendlyPluralName
	c.PrimaryKey = append([]string(nil), d.PrimaryKey...)
	for _, rule := range d.Security {
		rule.Permissions = append([]string(nil), rule.Permissions...)
		c.Security = append(c.Security, rule)
	}
	if d.Config != nil {
		c.Config = make(map[string]any, len(d.Config))
		for k, v := range d.Config {
			c.Config[k] = v
		}
	}
	for _, p := range d.properties {
		_ = c.AddProperty(p.clone())
	}
	return c
}

// Lookup resolves model definitions by name.
type Lookup interface {
	GetModelDefinition(name string) (*Definition, bool)
}
