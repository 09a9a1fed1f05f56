// Package cardinality infers the shape of a relationship from how two
// models reference each other.
package cardinality

import (
	"fmt"

	"github.com/leapstack-labs/leaporm/pkg/model"
)

// Multiplicity is how many entities may sit on one side of a relationship.
type Multiplicity string

// Multiplicities.
const (
	One  Multiplicity = "one"
	Many Multiplicity = "many"
)

// Direction tells whether both sides of a relationship know about it.
type Direction string

// Directions.
const (
	Uni  Direction = "uni"
	Bi   Direction = "bi"
	Self Direction = "self"
)

// Cardinality is the resolved shape of a reference property.
//
// Source is the multiplicity on the referencing model's side, Target the
// multiplicity on the referenced model's side. Book.author resolves to
// Target=one, Source=many: one author, many books.
type Cardinality struct {
	Source    Multiplicity
	Target    Multiplicity
	Direction Direction
}

// OneToOne reports target one, source one.
func (c Cardinality) OneToOne() bool { return c.Target == One && c.Source == One }

// OneToMany reports target one, source many.
func (c Cardinality) OneToMany() bool { return c.Target == One && c.Source == Many }

// ManyToOne reports target many, source one.
func (c Cardinality) ManyToOne() bool { return c.Target == Many && c.Source == One }

// ManyToMany reports both sides many.
func (c Cardinality) ManyToMany() bool { return c.Target == Many && c.Source == Many }

// Kind names the relationship shape.
func (c Cardinality) Kind() string {
	switch {
	case c.OneToOne():
		return "one-to-one"
	case c.OneToMany():
		return "one-to-many"
	case c.ManyToOne():
		return "many-to-one"
	default:
		return "many-to-many"
	}
}

func (c Cardinality) String() string {
	return fmt.Sprintf("%s (%s)", c.Kind(), c.Direction)
}

// Mirror returns the cardinality as seen from the other side.
func (c Cardinality) Mirror() Cardinality {
	return Cardinality{Source: c.Target, Target: c.Source, Direction: c.Direction}
}

func multiplicity(many bool) Multiplicity {
	if many {
		return Many
	}
	return One
}

// Resolve computes the cardinality of p, which must carry a reference. ok
// is false when the reverse property cannot be found or does not pair with
// p. Resolve reads only the definitions it is given and is safe to call
// repeatedly.
func Resolve(p *model.Property, models model.Lookup) (Cardinality, bool) {
	if p == nil || p.Reference == nil {
		return Cardinality{}, false
	}
	ref := p.Reference
	self := p.Model == ref.Target

	if ref.Reverse == "" {
		c := Cardinality{
			Source:    multiplicity(ref.IsDerived() || p.Multiple),
			Target:    multiplicity(p.Multiple),
			Direction: Uni,
		}
		if self {
			c.Direction = Self
		}
		return c, true
	}

	target, ok := models.GetModelDefinition(ref.Target)
	if !ok {
		return Cardinality{}, false
	}
	rev, ok := target.Property(ref.Reverse)
	if !ok || !Pairs(p, rev) {
		return Cardinality{}, false
	}
	c := Cardinality{
		Source:    multiplicity(rev.Multiple),
		Target:    multiplicity(p.Multiple),
		Direction: Bi,
	}
	if self {
		c.Direction = Self
	}
	return c, true
}

// Pairs reports whether rev is a consistent reverse of p: a reference back
// to p's model whose own reverse is unset or names p.
func Pairs(p, rev *model.Property) bool {
	if rev == nil || rev.Reference == nil {
		return false
	}
	if rev.Reference.Target != p.Model {
		return false
	}
	return rev.Reference.Reverse == "" || rev.Reference.Reverse == p.Name
}
