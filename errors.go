package descriptorstore

import "errors"

// Common errors shared by the type system, the query algebra and every backend.
var (
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrInvalidStoreType  = errors.New("invalid store type")
	ErrNotFound          = errors.New("not found")
	ErrUnsupported       = errors.New("operation not supported")
	ErrInvalidQuery      = errors.New("invalid query")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrTypeMismatch      = errors.New("type mismatch")
	ErrSchemaNotFound    = errors.New("schema not found")
)
