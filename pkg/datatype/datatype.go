// Package datatype maps abstract property types to physical storage fields.
//
// A type with a single unnamed field is stored in one column. Compound
// types such as "name" spread over several columns, one per field key.
package datatype

import (
	"errors"
	"fmt"
)

// Virtual is the sentinel type of properties that only carry a reference
// and never own a column.
const Virtual = "virtual"

// ErrUnsupportedSize is returned when size arguments do not fit a type.
var ErrUnsupportedSize = errors.New("unsupported size")

// FieldKind is the primitive kind of a physical field.
type FieldKind int

// Field kinds.
const (
	KindString FieldKind = iota
	KindText
	KindInteger
	KindFloat
	KindDecimal
	KindBoolean
	KindDate
	KindDateTime
	KindUUID
	KindJSON
)

func (k FieldKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindText:
		return "text"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindDecimal:
		return "decimal"
	case KindBoolean:
		return "boolean"
	case KindDate:
		return "date"
	case KindDateTime:
		return "datetime"
	case KindUUID:
		return "uuid"
	case KindJSON:
		return "json"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sizing describes which size arguments a type accepts.
type Sizing int

// Sizing rules.
const (
	SizeNone      Sizing = iota // no size arguments
	SizeLength                  // size is a length
	SizePrecision               // size is precision, size2 is scale
)

// Field is one physical storage field of a type.
type Field struct {
	Key       string // empty for simple storage
	Kind      FieldKind
	Length    int
	Precision int
	Scale     int
}

// Definition describes an abstract data type.
type Definition struct {
	Name   string
	Fields []Field
	Sizing Sizing
	Mapper string // value mapper key, empty for identity
}

// IsSimple reports whether the type maps to exactly one unnamed field.
func (d *Definition) IsSimple() bool {
	return len(d.Fields) == 1 && d.Fields[0].Key == ""
}

// Resolve returns the type's fields with size and size2 applied.
func (d *Definition) Resolve(size, size2 *int) ([]Field, error) {
	fields := make([]Field, len(d.Fields))
	copy(fields, d.Fields)

	if size == nil && size2 == nil {
		return fields, nil
	}
	if size == nil {
		return nil, fmt.Errorf("%w: type %s has size2 without size", ErrUnsupportedSize, d.Name)
	}

	switch d.Sizing {
	case SizeLength:
		if size2 != nil {
			return nil, fmt.Errorf("%w: type %s accepts a single length", ErrUnsupportedSize, d.Name)
		}
		fields[0].Length = *size
	case SizePrecision:
		scale := fields[0].Scale
		if size2 != nil {
			scale = *size2
		}
		if scale > *size {
			return nil, fmt.Errorf("%w: type %s scale %d exceeds precision %d", ErrUnsupportedSize, d.Name, scale, *size)
		}
		fields[0].Precision = *size
		fields[0].Scale = scale
	default:
		return nil, fmt.Errorf("%w: type %s does not take a size", ErrUnsupportedSize, d.Name)
	}
	return fields, nil
}

// ValueMapper converts between native values and storage values. Slices
// are aligned with the type's fields.
type ValueMapper interface {
	ToStorage(value any) ([]any, error)
	FromStorage(values []any) (any, error)
}
