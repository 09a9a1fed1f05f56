package persistence

import "errors"

// Persistence errors. Failures tied to one property are reported as
// *entity.PropertyError wrapping these.
var (
	ErrMultiValuedSave   = errors.New("multi-valued property must be written with SaveCollection")
	ErrNotWritable       = errors.New("property is stored by the referenced model")
	ErrReverseCollection = errors.New("collection is stored by the referencing model")
	ErrRequired          = errors.New("required property is not set")
	ErrUnsavedReference  = errors.New("referenced entity has no key")
	ErrUnsaved           = errors.New("entity has not been saved")
	ErrNotFound          = errors.New("entity not found")
	ErrUnknownModel      = errors.New("unknown model")
)
