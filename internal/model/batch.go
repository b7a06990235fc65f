package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// RowOutcome is what happened to one input row.
type RowOutcome int

// Row outcomes.
const (
	// OutcomeClassified rows carry a classification extracted from the backend.
	OutcomeClassified RowOutcome = iota
	// OutcomeDegraded rows are emitted with default classification values.
	OutcomeDegraded
	// OutcomeSkipped rows could not be normalized and are not emitted.
	OutcomeSkipped
)

func (o RowOutcome) String() string {
	switch o {
	case OutcomeClassified:
		return "classified"
	case OutcomeDegraded:
		return "degraded"
	case OutcomeSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("RowOutcome(%d)", int(o))
	}
}

// MarshalJSON renders the outcome by name.
func (o RowOutcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// ParseRowOutcome is the inverse of RowOutcome.String.
func ParseRowOutcome(s string) (RowOutcome, error) {
	switch s {
	case "classified":
		return OutcomeClassified, nil
	case "degraded":
		return OutcomeDegraded, nil
	case "skipped":
		return OutcomeSkipped, nil
	default:
		return 0, fmt.Errorf("unknown row outcome %q", s)
	}
}

// RowDiagnostic explains why a row was skipped or degraded. Row is the
// zero-based position of the row in the batch. Line is the row's line in the
// source sheet, counting the header as line 1, or 0 when unknown; blank source
// lines are not batch rows, so the two can drift apart.
type RowDiagnostic struct {
	Field   string     `json:"field,omitempty"`
	Message string     `json:"message"`
	Row     int        `json:"row"`
	Line    int        `json:"line,omitempty"`
	Outcome RowOutcome `json:"outcome"`
}

// BatchResult is the aggregated output of one pipeline run. Expenses are in
// input order; skipped rows are absent from Expenses and listed in Skipped.
type BatchResult struct {
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	ID         string            `json:"batch_id"`
	Source     string            `json:"source"`
	Expenses   []EnrichedExpense `json:"expenses"`
	Skipped    []RowDiagnostic   `json:"skipped"`
	Warnings   []RowDiagnostic   `json:"warnings"`
	Outcomes   []RowOutcome      `json:"-"`
	Classified int               `json:"classified"`
	Degraded   int               `json:"degraded"`
}

// Rows returns the number of input rows the batch accounted for.
func (b *BatchResult) Rows() int {
	return len(b.Outcomes)
}

// Summary condenses the batch for listings.
func (b *BatchResult) Summary() BatchSummary {
	return BatchSummary{
		ID:         b.ID,
		Source:     b.Source,
		StartedAt:  b.StartedAt,
		FinishedAt: b.FinishedAt,
		Rows:       b.Rows(),
		Classified: b.Classified,
		Degraded:   b.Degraded,
		Skipped:    len(b.Skipped),
	}
}

// BatchSummary is the stored header of a batch.
type BatchSummary struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	ID         string    `json:"batch_id"`
	Source     string    `json:"source"`
	Rows       int       `json:"rows"`
	Classified int       `json:"classified"`
	Degraded   int       `json:"degraded"`
	Skipped    int       `json:"skipped"`
}
