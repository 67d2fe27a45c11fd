// internal/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

// Boundary-level sentinel errors. These propagate to the caller; per-entity
// failures inside batch operations are returned as EntityError values instead.
var (
	// ErrInvalidSKU is returned by strict SKU parsing of a malformed identifier.
	ErrInvalidSKU = errors.New("invalid sku")

	// ErrInsufficientData signals that an entity lacks the history required
	// for the requested operation.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrModelFit signals that a statistical or ML fit failed.
	ErrModelFit = errors.New("model fit failed")

	// ErrNotFound signals a missing record in a store lookup.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports malformed input detected at the loading boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// DataLoadError wraps a backing-store failure. The core never retries these.
type DataLoadError struct {
	Source string
	Err    error
}

func (e *DataLoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Source, e.Err)
}

func (e *DataLoadError) Unwrap() error { return e.Err }

// ConfigurationError reports inconsistent settings. Raised at the boundary,
// never silently normalized.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Key, e.Reason)
}

// InsufficientDataError carries the observed and required history lengths.
type InsufficientDataError struct {
	EntityID string
	Have     int
	Need     int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("entity %s has %d months of history, need %d", e.EntityID, e.Have, e.Need)
}

func (e *InsufficientDataError) Unwrap() error { return ErrInsufficientData }
