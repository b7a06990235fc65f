package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/Veraticus/spice-audit/internal/common"
	"github.com/Veraticus/spice-audit/internal/engine"
	"github.com/Veraticus/spice-audit/internal/model"
	"github.com/Veraticus/spice-audit/internal/service"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

var detailHeader = []any{
	"Transaction Date",
	"Vendor",
	"Business Purpose",
	"Payment Type",
	"Amount",
	"Category",
	"Personal",
	"Policy Violation",
	"Degraded",
}

// Writer implements service.ReportWriter for Google Sheets.
type Writer struct {
	service *sheets.Service
	logger  *slog.Logger
	config  Config
}

var _ service.ReportWriter = (*Writer)(nil)

// NewWriter creates a new Google Sheets report writer.
func NewWriter(ctx context.Context, config Config, logger *slog.Logger) (*Writer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	srv, err := createSheetsService(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return newWriter(srv, config, logger), nil
}

func newWriter(srv *sheets.Service, config Config, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if config.SheetTitle == "" {
		config.SheetTitle = DefaultConfig().SheetTitle
	}
	return &Writer{
		service: srv,
		logger:  logger,
		config:  config,
	}
}

// Write replaces the report sheet with the batch summary and one row per
// enriched expense.
func (w *Writer) Write(ctx context.Context, batch *model.BatchResult) error {
	if batch == nil {
		return fmt.Errorf("no batch to export")
	}

	w.logger.Info("starting report export",
		"batch_id", batch.ID,
		"expenses", len(batch.Expenses))

	spreadsheetID, err := w.getOrCreateSpreadsheet(ctx)
	if err != nil {
		return fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	if clearErr := w.clearSheet(ctx, spreadsheetID); clearErr != nil {
		return fmt.Errorf("failed to clear sheet: %w", clearErr)
	}

	values, detailStart := prepareReportData(batch)

	retryOpts := service.RetryOptions{
		MaxAttempts:  w.config.RetryAttempts,
		InitialDelay: w.config.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}

	err = common.WithRetry(ctx, func() error {
		return w.writeData(ctx, spreadsheetID, values)
	}, retryOpts)
	if err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}

	if w.config.EnableFormatting {
		err = common.WithRetry(ctx, func() error {
			return w.applyFormatting(ctx, spreadsheetID, detailStart, len(values))
		}, retryOpts)
		if err != nil {
			// Formatting is cosmetic; the data is already written.
			w.logger.Warn("failed to apply formatting", "error", err)
		}
	}

	w.logger.Info("report export completed",
		"spreadsheet_id", spreadsheetID,
		"rows_written", len(values))

	return nil
}

// createSheetsService creates a Google Sheets API service.
func createSheetsService(ctx context.Context, config Config) (*sheets.Service, error) {
	var tokenSource oauth2.TokenSource

	if config.ServiceAccountPath != "" {
		jsonKey, err := os.ReadFile(config.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}

		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}

		tokenSource = jwtConfig.TokenSource(ctx)
	} else {
		client := &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{sheets.SpreadsheetsScope},
		}

		tokenSource = client.TokenSource(ctx, &oauth2.Token{
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		})
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, tokenSource)))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}

	return srv, nil
}

func (w *Writer) getOrCreateSpreadsheet(ctx context.Context) (string, error) {
	if w.config.SpreadsheetID != "" {
		_, err := w.service.Spreadsheets.Get(w.config.SpreadsheetID).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("unable to access spreadsheet %s: %w", w.config.SpreadsheetID, err)
		}
		return w.config.SpreadsheetID, nil
	}

	spreadsheet := &sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{
			Title:    w.config.SpreadsheetName,
			TimeZone: w.config.TimeZone,
		},
		Sheets: []*sheets.Sheet{
			{Properties: &sheets.SheetProperties{Title: w.config.SheetTitle}},
		},
	}

	created, err := w.service.Spreadsheets.Create(spreadsheet).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create spreadsheet: %w", err)
	}

	w.logger.Info("created new spreadsheet",
		"id", created.SpreadsheetId,
		"url", created.SpreadsheetUrl)

	return created.SpreadsheetId, nil
}

func (w *Writer) clearSheet(ctx context.Context, spreadsheetID string) error {
	_, err := w.service.Spreadsheets.Values.Clear(spreadsheetID, w.config.SheetTitle+"!A:Z", &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

// prepareReportData lays out the batch as sheet rows. The second return
// value is the index of the expense detail header row.
func prepareReportData(batch *model.BatchResult) ([][]any, int) {
	totals := engine.CategoryTotals(batch.Expenses)
	diagnostics := make([]model.RowDiagnostic, 0, len(batch.Skipped)+len(batch.Warnings))
	diagnostics = append(diagnostics, batch.Skipped...)
	diagnostics = append(diagnostics, batch.Warnings...)
	sort.SliceStable(diagnostics, func(i, j int) bool {
		return diagnostics[i].Row < diagnostics[j].Row
	})

	var total float64
	for _, e := range batch.Expenses {
		total += e.Amount
	}

	values := make([][]any, 0, 16+len(totals)+len(diagnostics)+len(batch.Expenses))
	values = append(values,
		[]any{"Expense Audit", batch.Source, batch.ID},
		[]any{},
		[]any{"Summary"},
		[]any{"Rows", batch.Rows()},
		[]any{"Classified", batch.Classified},
		[]any{"Degraded", batch.Degraded},
		[]any{"Skipped", len(batch.Skipped)},
		[]any{"Total Amount", total},
		[]any{},
		[]any{"Category Breakdown"},
		[]any{"Category", "Count", "Amount"},
	)

	categories := make([]string, 0, len(totals))
	for category := range totals {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool {
		a, b := totals[categories[i]], totals[categories[j]]
		if a.Amount != b.Amount {
			return a.Amount > b.Amount
		}
		return categories[i] < categories[j]
	})
	for _, category := range categories {
		values = append(values, []any{category, totals[category].Count, totals[category].Amount})
	}

	if len(diagnostics) > 0 {
		values = append(values,
			[]any{},
			[]any{"Row Issues"},
			[]any{"Row", "Outcome", "Field", "Message"},
		)
		for _, d := range diagnostics {
			values = append(values, []any{d.Row + 1, d.Outcome.String(), d.Field, d.Message})
		}
	}

	values = append(values, []any{}, []any{"Expense Details"})
	detailStart := len(values)
	values = append(values, detailHeader)

	for _, e := range batch.Expenses {
		values = append(values, []any{
			e.Date,
			e.Vendor,
			e.BusinessPurpose,
			e.PaymentType,
			e.Amount,
			e.Category,
			yesNo(e.IsPersonal),
			e.PolicyViolationReason,
			yesNo(e.ClassificationDegraded),
		})
	}

	return values, detailStart
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// writeData writes the values in chunks of config.BatchSize rows.
func (w *Writer) writeData(ctx context.Context, spreadsheetID string, values [][]any) error {
	batchSize := max(w.config.BatchSize, 1)
	for i := 0; i < len(values); i += batchSize {
		end := min(i+batchSize, len(values))

		chunk := values[i:end]
		rangeStr := fmt.Sprintf("%s!A%d", w.config.SheetTitle, i+1)
		_, err := w.service.Spreadsheets.Values.Update(spreadsheetID, rangeStr, &sheets.ValueRange{Values: chunk}).
			ValueInputOption("USER_ENTERED").
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("failed to write batch starting at row %d: %w", i+1, err)
		}

		w.logger.Debug("wrote batch", "start_row", i+1, "rows", len(chunk))
	}

	return nil
}

func (w *Writer) applyFormatting(ctx context.Context, spreadsheetID string, detailStart, totalRows int) error {
	requests := []*sheets.Request{
		// Title
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          0,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   1,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat: &sheets.TextFormat{Bold: true, FontSize: 16},
					},
				},
				Fields: "userEnteredFormat.textFormat",
			},
		},
		// Detail header
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          0,
					StartRowIndex:    int64(detailStart),
					EndRowIndex:      int64(detailStart + 1),
					StartColumnIndex: 0,
					EndColumnIndex:   int64(len(detailHeader)),
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat: &sheets.TextFormat{Bold: true},
					},
				},
				Fields: "userEnteredFormat.textFormat",
			},
		},
		// Amount column of the detail rows
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          0,
					StartRowIndex:    int64(detailStart + 1),
					EndRowIndex:      int64(totalRows),
					StartColumnIndex: 4,
					EndColumnIndex:   5,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						NumberFormat: &sheets.NumberFormat{
							Type:    "CURRENCY",
							Pattern: "$#,##0.00",
						},
					},
				},
				Fields: "userEnteredFormat.numberFormat",
			},
		},
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    0,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   int64(len(detailHeader)),
				},
			},
		},
	}

	_, err := w.service.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	return err
}
