// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/spice-audit/internal/model"
)

// BatchStore defines the contract for our persistence layer.
type BatchStore interface {
	SaveBatch(ctx context.Context, batch *model.BatchResult) error
	GetBatch(ctx context.Context, id string) (*model.BatchSummary, error)
	ListBatches(ctx context.Context, limit int) ([]model.BatchSummary, error)
	GetBatchExpenses(ctx context.Context, id string) ([]model.EnrichedExpense, error)
	GetBatchErrors(ctx context.Context, id string) ([]model.RowDiagnostic, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// ReportWriter exports an enriched batch to an external destination.
type ReportWriter interface {
	Write(ctx context.Context, batch *model.BatchResult) error
}

// CategorySummary contains aggregated statistics for a category.
type CategorySummary struct {
	Count  int
	Amount float64
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
