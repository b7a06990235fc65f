package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/spice-audit/internal/ingest"
	"github.com/Veraticus/spice-audit/internal/llm"
	"github.com/Veraticus/spice-audit/internal/model"
	"github.com/google/uuid"
)

// Batch statuses reported to the Recorder.
const (
	StatusAggregated = "aggregated"
	StatusRejected   = "rejected"
	StatusCanceled   = "canceled"
)

const (
	// DefaultMaxRows bounds the rows accepted in one batch.
	DefaultMaxRows = 500
	// DefaultMaxTokens bounds the generated output per row.
	DefaultMaxTokens = 150
)

const extractionFailedMessage = "generated text contained no parseable classification"

// Pipeline classifies every row of an expense table. Rows are processed one
// at a time in input order against a shared Generator.
type Pipeline struct {
	gen       Generator
	logger    *slog.Logger
	progress  ProgressReporter
	metrics   Recorder
	now       func() time.Time
	required  []string
	maxRows   int
	maxTokens int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used for row diagnostics and batch summaries.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMaxRows bounds the batch size. Zero disables the bound.
func WithMaxRows(n int) Option {
	return func(p *Pipeline) { p.maxRows = n }
}

// WithMaxTokens sets the output token budget passed to the generator.
func WithMaxTokens(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxTokens = n
		}
	}
}

// WithProgress reports per-row progress to r.
func WithProgress(r ProgressReporter) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.progress = r
		}
	}
}

// WithMetrics records batch, row and generation measurements to r.
func WithMetrics(r Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.metrics = r
		}
	}
}

// WithClock replaces time.Now for batch timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline around gen, which is typically a shared
// *llm.Backend.
func New(gen Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		gen:       gen,
		logger:    slog.Default(),
		progress:  nopProgress{},
		metrics:   nopRecorder{},
		now:       time.Now,
		required:  model.RequiredColumns(),
		maxRows:   DefaultMaxRows,
		maxTokens: DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run validates the table and classifies its rows. A missing column returns
// a *model.SchemaError and an oversized table model.ErrBatchTooLarge, both
// before any row is touched. Per-row failures never fail the batch: rows
// that cannot be normalized are skipped with a diagnostic, and rows whose
// classification fails are emitted with defaults. Cancellation is checked
// between rows.
func (p *Pipeline) Run(ctx context.Context, table *ingest.Table) (*model.BatchResult, error) {
	if table == nil {
		return nil, errors.New("no table to classify")
	}

	if err := ingest.ValidateColumns(table.Columns, p.required); err != nil {
		p.metrics.ObserveBatch(StatusRejected)
		p.logger.Warn("batch rejected", "source", table.Name, "error", err)
		return nil, err
	}

	total := len(table.Rows)
	if p.maxRows > 0 && total > p.maxRows {
		p.metrics.ObserveBatch(StatusRejected)
		return nil, fmt.Errorf("%w: %d rows, limit is %d", model.ErrBatchTooLarge, total, p.maxRows)
	}

	result := &model.BatchResult{
		ID:        uuid.NewString(),
		Source:    table.Name,
		StartedAt: p.now(),
		Expenses:  make([]model.EnrichedExpense, 0, total),
		Skipped:   []model.RowDiagnostic{},
		Warnings:  []model.RowDiagnostic{},
		Outcomes:  make([]model.RowOutcome, 0, total),
	}
	logger := p.logger.With("batch_id", result.ID)
	logger.Info("Starting batch", "source", table.Name, "rows", total)

	p.progress.Start(total)
	defer p.progress.Finish()

	for i, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			p.metrics.ObserveBatch(StatusCanceled)
			return nil, fmt.Errorf("batch canceled after %d of %d rows: %w", i, total, err)
		}

		outcome := p.processRow(ctx, logger, i, table.Line(i), row, result)
		result.Outcomes = append(result.Outcomes, outcome)
		p.progress.Advance(outcome)
		p.metrics.ObserveRow(outcome)
	}

	result.FinishedAt = p.now()
	p.metrics.ObserveBatch(StatusAggregated)
	logger.Info("Batch complete",
		"rows", total,
		"classified", result.Classified,
		"degraded", result.Degraded,
		"skipped", len(result.Skipped),
		"duration", result.FinishedAt.Sub(result.StartedAt))

	return result, nil
}

func (p *Pipeline) processRow(ctx context.Context, logger *slog.Logger, index, line int, row model.RawRow, result *model.BatchResult) model.RowOutcome {
	rec, err := normalize(row, index)
	if err != nil {
		diag := model.RowDiagnostic{Row: index, Line: line, Outcome: model.OutcomeSkipped, Message: err.Error()}
		var parseErr *model.RowParseError
		if errors.As(err, &parseErr) {
			diag.Field = parseErr.Field
		}
		result.Skipped = append(result.Skipped, diag)
		logger.Warn("Skipping row", "row", index, "line", line, "error", err)
		return model.OutcomeSkipped
	}

	res, err := p.classify(ctx, rec)
	switch {
	case err != nil:
		res = model.DefaultClassification()
		result.Warnings = append(result.Warnings, model.RowDiagnostic{
			Row:     index,
			Line:    line,
			Outcome: model.OutcomeDegraded,
			Message: err.Error(),
		})
		logger.Warn("Classification failed, using defaults", "row", index, "line", line, "error", err)
	case res.Degraded:
		result.Warnings = append(result.Warnings, model.RowDiagnostic{
			Row:     index,
			Line:    line,
			Outcome: model.OutcomeDegraded,
			Message: extractionFailedMessage,
		})
		logger.Debug("No classification in generated text", "row", index)
	}

	result.Expenses = append(result.Expenses, Merge(rec, res))
	if res.Degraded {
		result.Degraded++
		return model.OutcomeDegraded
	}
	result.Classified++
	return model.OutcomeClassified
}

// classify runs prompt, generation and extraction for one record. A panic
// in the generator is returned as an error.
func (p *Pipeline) classify(ctx context.Context, rec model.ExpenseRecord) (res model.ClassificationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: generator panicked: %v", model.ErrBackendUnavailable, r)
		}
	}()

	start := time.Now()
	text, err := p.gen.Generate(ctx, llm.BuildPrompt(rec), p.maxTokens)
	p.metrics.ObserveGeneration(time.Since(start), err)
	if r, ok := p.gen.(readiness); ok {
		p.metrics.SetBackendReady(r.Ready())
	}
	if err != nil {
		return model.ClassificationResult{}, err
	}

	return llm.ExtractClassification(text), nil
}

func normalize(row model.RawRow, index int) (rec model.ExpenseRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &model.RowParseError{Row: index, Err: fmt.Errorf("normalization panicked: %v", r)}
		}
	}()
	return ingest.Normalize(row, index)
}
