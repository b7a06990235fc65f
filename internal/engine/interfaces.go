package engine

import (
	"context"
	"time"

	"github.com/Veraticus/spice-audit/internal/model"
)

// Generator defines the contract for the text generation backend.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// ProgressReporter receives per-row progress while a batch runs.
type ProgressReporter interface {
	Start(total int)
	Advance(outcome model.RowOutcome)
	Finish()
}

// Recorder receives pipeline measurements.
type Recorder interface {
	ObserveBatch(status string)
	ObserveRow(outcome model.RowOutcome)
	ObserveGeneration(elapsed time.Duration, err error)
	SetBackendReady(ready bool)
}

// readiness is implemented by generators with a lazy initialization step.
type readiness interface {
	Ready() bool
}

type nopProgress struct{}

func (nopProgress) Start(int)                {}
func (nopProgress) Advance(model.RowOutcome) {}
func (nopProgress) Finish()                  {}

type nopRecorder struct{}

func (nopRecorder) ObserveBatch(string)                    {}
func (nopRecorder) ObserveRow(model.RowOutcome)            {}
func (nopRecorder) ObserveGeneration(time.Duration, error) {}
func (nopRecorder) SetBackendReady(bool)                   {}
