package model

import (
	"errors"
	"fmt"
)

// Compile error causes.
var (
	ErrDuplicatePrimaryKey = errors.New("duplicate primary-key declarations")
	ErrUndefinedField      = errors.New("undefined field")
	ErrSize2WithoutSize    = errors.New("size2 given without size")
	ErrUnknownType         = errors.New("unknown data type")
	ErrInvalidDeclaration  = errors.New("invalid declaration")
)

// CompileError ties a compile failure to the model and, when known, the
// property that caused it.
type CompileError struct {
	Model    string
	Property string
	Err      error
}

func (e *CompileError) Error() string {
	if e.Property != "" {
		return fmt.Sprintf("model %s, property %s: %v", e.Model, e.Property, e.Err)
	}
	return fmt.Sprintf("model %s: %v", e.Model, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

func compileErr(model, property string, err error) *CompileError {
	return &CompileError{Model: model, Property: property, Err: err}
}

func compileErrf(model, property string, cause error, format string, args ...any) *CompileError {
	return &CompileError{Model: model, Property: property, Err: fmt.Errorf("%w: %s", cause, fmt.Sprintf(format, args...))}
}
