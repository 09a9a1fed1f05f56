package schema

import (
	"errors"
	"fmt"
)

// Planning error causes.
var (
	ErrUndefinedModel        = errors.New("reference to undefined model")
	ErrMissingReverse        = errors.New("many-to-one reference needs a stored reverse property")
	ErrUnresolvedCardinality = errors.New("cardinality cannot be resolved")
	ErrNoPrimaryKey          = errors.New("model has no usable primary key")
	ErrUnsupportedPath       = errors.New("unsupported reference path")
	ErrColumnConflict        = errors.New("column name conflict")
)

// PlanError ties a planning failure to a model and property.
type PlanError struct {
	Model    string
	Property string
	Err      error
}

func (e *PlanError) Error() string {
	if e.Property != "" {
		return fmt.Sprintf("model %s, property %s: %v", e.Model, e.Property, e.Err)
	}
	return fmt.Sprintf("model %s: %v", e.Model, e.Err)
}

func (e *PlanError) Unwrap() error { return e.Err }

func planErr(model, property string, err error) *PlanError {
	return &PlanError{Model: model, Property: property, Err: err}
}

func planErrf(model, property string, cause error, format string, args ...any) *PlanError {
	return &PlanError{Model: model, Property: property, Err: fmt.Errorf("%w: %s", cause, fmt.Sprintf(format, args...))}
}
