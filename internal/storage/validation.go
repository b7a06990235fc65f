// Package storage provides the data persistence layer for classified batches.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/spice-audit/internal/model"
)

// Validation errors.
var (
	ErrNilContext   = errors.New("context cannot be nil")
	ErrEmptyString  = errors.New("string parameter cannot be empty")
	ErrNilParameter = errors.New("parameter cannot be nil")
	ErrInvalidBatch = errors.New("invalid batch")
	ErrInvalidLimit = errors.New("limit must be positive")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateBatch checks that a batch can be stored.
func validateBatch(batch *model.BatchResult) error {
	if batch == nil {
		return fmt.Errorf("%w: batch", ErrNilParameter)
	}
	if strings.TrimSpace(batch.ID) == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidBatch)
	}
	if batch.StartedAt.IsZero() {
		return fmt.Errorf("%w: missing start time", ErrInvalidBatch)
	}
	if batch.FinishedAt.Before(batch.StartedAt) {
		return fmt.Errorf("%w: finished before it started", ErrInvalidBatch)
	}
	if batch.Classified+batch.Degraded != len(batch.Expenses) {
		return fmt.Errorf("%w: %d classified and %d degraded do not account for %d expenses",
			ErrInvalidBatch, batch.Classified, batch.Degraded, len(batch.Expenses))
	}
	return nil
}

// validateDiagnostic checks a row diagnostic before it is stored.
func validateDiagnostic(diag model.RowDiagnostic) error {
	if diag.Row < 0 {
		return fmt.Errorf("%w: negative row index %d", ErrInvalidBatch, diag.Row)
	}
	if diag.Line < 0 {
		return fmt.Errorf("%w: row %d has negative source line %d", ErrInvalidBatch, diag.Row, diag.Line)
	}
	if strings.TrimSpace(diag.Message) == "" {
		return fmt.Errorf("%w: row %d diagnostic has no message", ErrInvalidBatch, diag.Row)
	}
	return nil
}
