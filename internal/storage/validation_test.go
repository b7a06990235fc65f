package storage

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/spice-audit/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestValidateString(t *testing.T) {
	assert.NoError(t, validateString("audit.db", "dbPath"))
	assert.ErrorIs(t, validateString("", "dbPath"), ErrEmptyString)
	assert.ErrorIs(t, validateString("  \t", "dbPath"), ErrEmptyString)
}

func TestValidateContext(t *testing.T) {
	assert.NoError(t, validateContext(context.Background()))
	//nolint:staticcheck // nil context is the case under test
	assert.ErrorIs(t, validateContext(nil), ErrNilContext)
}

func TestValidateBatch(t *testing.T) {
	start := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)
	valid := func() *model.BatchResult {
		return &model.BatchResult{
			ID:         "batch-1",
			StartedAt:  start,
			FinishedAt: start.Add(time.Minute),
			Expenses: []model.EnrichedExpense{
				{Category: "Travel"},
				{Category: "Other", ClassificationDegraded: true},
			},
			Classified: 1,
			Degraded:   1,
		}
	}

	tests := []struct {
		name    string
		mutate  func(b *model.BatchResult)
		wantErr error
	}{
		{name: "valid", mutate: func(*model.BatchResult) {}},
		{name: "missing id", mutate: func(b *model.BatchResult) { b.ID = " " }, wantErr: ErrInvalidBatch},
		{name: "missing start", mutate: func(b *model.BatchResult) { b.StartedAt = time.Time{} }, wantErr: ErrInvalidBatch},
		{name: "finished before start", mutate: func(b *model.BatchResult) { b.FinishedAt = start.Add(-time.Second) }, wantErr: ErrInvalidBatch},
		{name: "counts do not add up", mutate: func(b *model.BatchResult) { b.Degraded = 0 }, wantErr: ErrInvalidBatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := valid()
			tt.mutate(b)

			err := validateBatch(b)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.ErrorIs(t, validateBatch(nil), ErrNilParameter)
}

func TestValidateDiagnostic(t *testing.T) {
	assert.NoError(t, validateDiagnostic(model.RowDiagnostic{Row: 0, Message: "amount is required"}))
	assert.ErrorIs(t, validateDiagnostic(model.RowDiagnostic{Row: -1, Message: "x"}), ErrInvalidBatch)
	assert.ErrorIs(t, validateDiagnostic(model.RowDiagnostic{Row: 2}), ErrInvalidBatch)
	assert.ErrorIs(t, validateDiagnostic(model.RowDiagnostic{Row: 2, Line: -1, Message: "x"}), ErrInvalidBatch)
}
