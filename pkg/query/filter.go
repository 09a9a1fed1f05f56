package query

import "fmt"

// Op is a leaf comparison operator.
type Op int

// Comparison operators.
const (
	OpEq Op = iota
	OpNe
	OpGt
	OpGe
	OpLt
	OpLe
	OpLike
	OpNotLike
	OpIsNull
	OpNotNull
	OpIn
	OpNotIn
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "="
	case OpNe:
		return "<>"
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpLike:
		return "LIKE"
	case OpNotLike:
		return "NOT LIKE"
	case OpIsNull:
		return "IS NULL"
	case OpNotNull:
		return "IS NOT NULL"
	case OpIn:
		return "IN"
	case OpNotIn:
		return "NOT IN"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Filter is a node of a filter tree: a Condition or a Group.
type Filter interface {
	isFilter()
}

// Condition compares one property with a value. Property is a root
// property name, or "ref.prop" for a property of a joined reference.
type Condition struct {
	Property string
	Op       Op
	Value    any   // comparison operand; unused by IS NULL and IS NOT NULL
	Values   []any // IN and NOT IN candidates
}

// Group combines filters with AND, or with OR when Or is set. An empty
// group matches every row.
type Group struct {
	Or      bool
	Filters []Filter
}

func (Condition) isFilter() {}
func (Group) isFilter()     {}

// Eq matches rows where property equals v.
func Eq(property string, v any) Condition { return Condition{Property: property, Op: OpEq, Value: v} }

// Ne matches rows where property differs from v.
func Ne(property string, v any) Condition { return Condition{Property: property, Op: OpNe, Value: v} }

// Gt matches rows where property is greater than v.
func Gt(property string, v any) Condition { return Condition{Property: property, Op: OpGt, Value: v} }

// Ge matches rows where property is greater than or equal to v.
func Ge(property string, v any) Condition { return Condition{Property: property, Op: OpGe, Value: v} }

// Lt matches rows where property is less than v.
func Lt(property string, v any) Condition { return Condition{Property: property, Op: OpLt, Value: v} }

// Le matches rows where property is less than or equal to v.
func Le(property string, v any) Condition { return Condition{Property: property, Op: OpLe, Value: v} }

// Like matches property against a LIKE pattern.
func Like(property, pattern string) Condition {
	return Condition{Property: property, Op: OpLike, Value: pattern}
}

// NotLike excludes rows whose property matches a LIKE pattern.
func NotLike(property, pattern string) Condition {
	return Condition{Property: property, Op: OpNotLike, Value: pattern}
}

// IsNull matches rows where property is unset.
func IsNull(property string) Condition { return Condition{Property: property, Op: OpIsNull} }

// NotNull matches rows where property is set.
func NotNull(property string) Condition { return Condition{Property: property, Op: OpNotNull} }

// In matches rows where property equals one of values. With no values it
// matches nothing.
func In(property string, values ...any) Condition {
	return Condition{Property: property, Op: OpIn, Values: values}
}

// NotIn matches rows where property equals none of values. With no values
// it matches everything.
func NotIn(property string, values ...any) Condition {
	return Condition{Property: property, Op: OpNotIn, Values: values}
}

// And matches rows matching every filter.
func And(filters ...Filter) Group { return Group{Filters: filters} }

// Or matches rows matching at least one filter.
func Or(filters ...Filter) Group { return Group{Or: true, Filters: filters} }
