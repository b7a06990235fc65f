package model

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendUnavailable indicates the generation backend could not be
	// initialized or failed on invocation.
	ErrBackendUnavailable = errors.New("generation backend unavailable")
	// ErrBatchTooLarge indicates a batch exceeded the configured row bound.
	ErrBatchTooLarge = errors.New("batch exceeds maximum row count")
)

// SchemaError reports a required column missing from the source table.
type SchemaError struct {
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("Missing required column: %s", e.Column)
}

// RowParseError reports a cell that could not be coerced to its field type.
type RowParseError struct {
	Err   error
	Field string
	Value string
	Row   int
}

func (e *RowParseError) Error() string {
	return fmt.Sprintf("row %d: invalid %s %q: %v", e.Row, e.Field, e.Value, e.Err)
}

func (e *RowParseError) Unwrap() error {
	return e.Err
}

// BackendError wraps a failure of a named generation backend.
type BackendError struct {
	Err      error
	Provider string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend: %v", e.Provider, e.Err)
}

// Unwrap exposes both ErrBackendUnavailable and the underlying cause.
func (e *BackendError) Unwrap() []error {
	return []error{ErrBackendUnavailable, e.Err}
}
