package entity

import (
	"errors"
	"fmt"
)

// Property access errors.
var (
	ErrUnknownProperty = errors.New("unknown property")
	ErrNotSingleValued = errors.New("property is multi-valued")
	ErrNotMultiValued  = errors.New("property is single-valued")
	ErrNotReference    = errors.New("property is not a reference")
	ErrIsReference     = errors.New("property is a reference")
	ErrReadOnly        = errors.New("property is read-only")
	ErrNotLoaded       = errors.New("property is not loaded")
)

// PropertyError names the model and property an operation failed on.
type PropertyError struct {
	Model    string
	Property string
	Err      error
}

func (e *PropertyError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Model, e.Property, e.Err)
}

func (e *PropertyError) Unwrap() error { return e.Err }

// NewPropertyError creates a PropertyError.
func NewPropertyError(model, property string, err error) *PropertyError {
	return &PropertyError{Model: model, Property: property, Err: err}
}
