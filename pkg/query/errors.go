package query

import "errors"

// Query errors. Property-level failures are reported as
// *entity.PropertyError wrapping one of these or an entity sentinel.
var (
	ErrUnknownModel        = errors.New("unknown model")
	ErrNegativePagination  = errors.New("limit and offset must not be negative")
	ErrJoinNotRequested    = errors.New("reference is not joined")
	ErrUnsupportedJoin     = errors.New("reference cannot be joined")
	ErrUnsupportedOperator = errors.New("operator not supported for property")
	ErrNotStored           = errors.New("property has no column on its model table")
	ErrMixedModels         = errors.New("entities of different models in one batch")
	ErrNoRows              = errors.New("no matching entity")
)
