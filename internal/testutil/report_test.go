package testutil

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/spice-audit/internal/ingest"
	"github.com/Veraticus/spice-audit/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportBuilder_CSV(t *testing.T) {
	text := NewReport(t).
		WithExpense("Delta Airlines", 450.0).
		WithExpense("Cafe, Downtown", "18.25").
		CSV()

	table, err := ingest.Read("report.csv", strings.NewReader(text))
	require.NoError(t, err)
	require.NoError(t, ingest.ValidateColumns(table.Columns, model.RequiredColumns()))
	require.Len(t, table.Rows, 2)

	rec, err := ingest.Normalize(table.Rows[1], 1)
	require.NoError(t, err)
	assert.Equal(t, "Cafe, Downtown", rec.Vendor)
	assert.InDelta(t, 18.25, rec.Amount, 1e-9)
}

func TestReportBuilder_Without(t *testing.T) {
	b := NewReport(t).WithExpense("Delta", 1).Without(model.ColumnReceipt)

	assert.NotContains(t, b.Columns(), model.ColumnReceipt)
	assert.Len(t, b.Columns(), len(model.RequiredColumns())-1)

	rows := b.Rows()
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Has(model.ColumnReceipt))

	err := ingest.ValidateColumns(b.Table("short.csv").Columns, model.RequiredColumns())
	var schemaErr *model.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, model.ColumnReceipt, schemaErr.Column)
}

func TestSetupTestDB(t *testing.T) {
	store := SetupTestDB(t)

	start := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)
	rec, err := ingest.Normalize(ExpenseRow("Delta", 10), 0)
	require.NoError(t, err)

	SeedBatch(t, store, &model.BatchResult{
		ID:         "batch-1",
		Source:     "march.csv",
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
		Expenses:   []model.EnrichedExpense{{ExpenseRecord: rec, Category: "Travel"}},
		Outcomes:   []model.RowOutcome{model.OutcomeClassified},
		Classified: 1,
	})

	batches, err := store.ListBatches(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "batch-1", batches[0].ID)
}
