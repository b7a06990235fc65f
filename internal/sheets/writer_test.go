package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/spice-audit/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

func testBatch() *model.BatchResult {
	return &model.BatchResult{
		ID:     "batch-42",
		Source: "march.xlsx",
		Expenses: []model.EnrichedExpense{
			{
				ExpenseRecord: model.ExpenseRecord{Date: "2024-03-09", Vendor: "Delta Airlines", Amount: 450},
				Category:      "Travel",
			},
			{
				ExpenseRecord: model.ExpenseRecord{Date: "2024-03-10", Vendor: "Starbucks", Amount: 12.5},
				Category:      "Meals",
				IsPersonal:    true,
			},
			{
				ExpenseRecord:          model.ExpenseRecord{Date: "2024-03-11", Vendor: "Nobu", Amount: 80, PolicyViolationReason: "Over limit"},
				Category:               "Other",
				ClassificationDegraded: true,
			},
		},
		Skipped: []model.RowDiagnostic{
			{Row: 3, Field: model.ColumnAmount, Message: "invalid amount", Outcome: model.OutcomeSkipped},
		},
		Warnings: []model.RowDiagnostic{
			{Row: 2, Message: "backend unavailable", Outcome: model.OutcomeDegraded},
		},
		Outcomes: []model.RowOutcome{
			model.OutcomeClassified, model.OutcomeClassified, model.OutcomeDegraded, model.OutcomeSkipped,
		},
		Classified: 2,
		Degraded:   1,
	}
}

func TestPrepareReportData(t *testing.T) {
	values, detailStart := prepareReportData(testBatch())

	assert.Equal(t, []any{"Expense Audit", "march.xlsx", "batch-42"}, values[0])
	assert.Contains(t, values, []any{"Rows", 4})
	assert.Contains(t, values, []any{"Skipped", 1})
	assert.Contains(t, values, []any{"Total Amount", 542.5})

	// Categories sorted by amount, largest first.
	var categories []any
	for i, row := range values {
		if len(row) == 3 && i > 0 && (row[0] == "Travel" || row[0] == "Meals" || row[0] == "Other") {
			categories = append(categories, row[0])
		}
	}
	assert.Equal(t, []any{"Travel", "Other", "Meals"}, categories)

	// Diagnostics ordered by row, shown one-based.
	assert.Contains(t, values, []any{3, "degraded", "", "backend unavailable"})
	assert.Contains(t, values, []any{4, "skipped", model.ColumnAmount, "invalid amount"})

	require.Equal(t, detailHeader, values[detailStart])
	details := values[detailStart+1:]
	require.Len(t, details, 3)
	assert.Equal(t, "Delta Airlines", details[0][1])
	assert.Equal(t, "Yes", details[1][6], "personal")
	assert.Equal(t, "Over limit", details[2][7])
	assert.Equal(t, "Yes", details[2][8], "degraded")
}

func TestPrepareReportData_NoDiagnostics(t *testing.T) {
	batch := testBatch()
	batch.Skipped = nil
	batch.Warnings = nil

	values, _ := prepareReportData(batch)
	for _, row := range values {
		if len(row) > 0 {
			assert.NotEqual(t, "Row Issues", row[0])
		}
	}
}

type fakeSheetsAPI struct {
	failUpdate bool
	requests   []string
	written    int
	mu         sync.Mutex
}

func (f *fakeSheetsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	if r.Method == http.MethodPut {
		if f.failUpdate {
			http.Error(w, `{"error":{"code":500,"message":"backend error"}}`, http.StatusInternalServerError)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var vr sheets.ValueRange
		if err := json.Unmarshal(body, &vr); err == nil {
			f.written += len(vr.Values)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"spreadsheetId":"sheet-123","spreadsheetUrl":"https://example.invalid/sheet-123"}`)
}

func newTestWriter(t *testing.T, api http.Handler, config Config) *Writer {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	svc, err := sheets.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	return newWriter(svc, config, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestWriter_Write(t *testing.T) {
	api := &fakeSheetsAPI{}
	config := DefaultConfig()
	config.BatchSize = 5
	config.RetryAttempts = 1
	config.RetryDelay = time.Millisecond
	writer := newTestWriter(t, api, config)

	require.NoError(t, writer.Write(context.Background(), testBatch()))

	values, _ := prepareReportData(testBatch())
	assert.Equal(t, len(values), api.written)

	var creates, clears, updates, formats int
	for _, req := range api.requests {
		switch {
		case req == "POST /v4/spreadsheets":
			creates++
		case strings.HasSuffix(req, ":clear"):
			clears++
		case strings.HasPrefix(req, "PUT "):
			updates++
		case strings.HasSuffix(req, ":batchUpdate"):
			formats++
		}
	}
	assert.Equal(t, 1, creates)
	assert.Equal(t, 1, clears)
	assert.Equal(t, (len(values)+4)/5, updates)
	assert.Equal(t, 1, formats)
}

func TestWriter_WriteExistingSpreadsheet(t *testing.T) {
	api := &fakeSheetsAPI{}
	config := DefaultConfig()
	config.SpreadsheetID = "sheet-123"
	config.EnableFormatting = false
	writer := newTestWriter(t, api, config)

	require.NoError(t, writer.Write(context.Background(), testBatch()))

	assert.Equal(t, "GET /v4/spreadsheets/sheet-123", api.requests[0])
	for _, req := range api.requests {
		assert.NotEqual(t, "POST /v4/spreadsheets", req)
		assert.False(t, strings.HasSuffix(req, ":batchUpdate"))
	}
}

func TestWriter_WriteFailure(t *testing.T) {
	api := &fakeSheetsAPI{failUpdate: true}
	config := DefaultConfig()
	config.RetryAttempts = 1
	writer := newTestWriter(t, api, config)

	err := writer.Write(context.Background(), testBatch())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write data")

	assert.Error(t, writer.Write(context.Background(), nil))
}

func TestMockWriter(t *testing.T) {
	mock := NewMockWriter()
	batch := testBatch()

	require.NoError(t, mock.Write(context.Background(), batch))
	mock.SetWriteError(errors.New("quota exceeded"))
	require.Error(t, mock.Write(context.Background(), batch))

	calls := mock.GetWriteCalls()
	require.Len(t, calls, 2)
	assert.Same(t, batch, mock.LastBatch)
	assert.NoError(t, calls[0].Error)
	assert.EqualError(t, calls[1].Error, "quota exceeded")
}
