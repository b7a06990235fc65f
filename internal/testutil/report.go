package testutil

import (
	"bytes"
	"encoding/csv"
	"slices"
	"testing"

	"github.com/Veraticus/spice-audit/internal/ingest"
	"github.com/Veraticus/spice-audit/internal/model"
)

// ExpenseRow returns a complete, valid raw row for vendor and amount. The
// remaining columns hold plausible business-travel values.
func ExpenseRow(vendor string, amount any) model.RawRow {
	return model.RawRow{
		model.ColumnPersonalExpense:     "No",
		model.ColumnPolicyViolationFlag: "No",
		model.ColumnPolicyViolation:     "",
		model.ColumnBusinessType:        "Travel",
		model.ColumnBusinessPurpose:     "Client visit",
		model.ColumnTransactionDate:     "2024-03-09",
		model.ColumnPaymentType:         "Corporate Card",
		model.ColumnAmount:              amount,
		model.ColumnVendor:              vendor,
		model.ColumnReceipt:             "Yes",
		model.ColumnPreApproved:         "Yes",
	}
}

// ReportBuilder assembles an expense report fluently.
//
// Example:
//
//	csv := testutil.NewReport(t).
//		WithExpense("Delta Airlines", 450.0).
//		WithExpense("Starbucks", "18.25").
//		CSV()
type ReportBuilder struct {
	t       testing.TB
	dropped map[string]bool
	rows    []model.RawRow
}

// NewReport starts an empty report with every required column.
func NewReport(t testing.TB) *ReportBuilder {
	return &ReportBuilder{
		t:       t,
		dropped: make(map[string]bool),
	}
}

// WithExpense appends a valid row for vendor and amount.
func (b *ReportBuilder) WithExpense(vendor string, amount any) *ReportBuilder {
	return b.WithRow(ExpenseRow(vendor, amount))
}

// WithRow appends row as given.
func (b *ReportBuilder) WithRow(row model.RawRow) *ReportBuilder {
	b.rows = append(b.rows, row)
	return b
}

// Without removes column from the header and from every row.
func (b *ReportBuilder) Without(column string) *ReportBuilder {
	b.dropped[column] = true
	return b
}

// Columns returns the report header.
func (b *ReportBuilder) Columns() []string {
	return slices.DeleteFunc(model.RequiredColumns(), func(c string) bool {
		return b.dropped[c]
	})
}

// Rows returns copies of the rows with dropped columns removed.
func (b *ReportBuilder) Rows() []model.RawRow {
	rows := make([]model.RawRow, 0, len(b.rows))
	for _, row := range b.rows {
		out := make(model.RawRow, len(row))
		for k, v := range row {
			if !b.dropped[k] {
				out[k] = v
			}
		}
		rows = append(rows, out)
	}
	return rows
}

// Table returns the report as a parsed table named name.
func (b *ReportBuilder) Table(name string) *ingest.Table {
	return &ingest.Table{
		Name:    name,
		Columns: b.Columns(),
		Rows:    b.Rows(),
	}
}

// CSV renders the report as CSV text.
func (b *ReportBuilder) CSV() string {
	b.t.Helper()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	columns := b.Columns()

	if err := w.Write(columns); err != nil {
		b.t.Fatalf("failed to write CSV header: %v", err)
	}
	for _, row := range b.Rows() {
		record := make([]string, len(columns))
		for i, col := range columns {
			record[i] = model.CellText(row[col])
		}
		if err := w.Write(record); err != nil {
			b.t.Fatalf("failed to write CSV row: %v", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		b.t.Fatalf("failed to flush CSV: %v", err)
	}
	return buf.String()
}
