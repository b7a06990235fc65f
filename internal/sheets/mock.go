package sheets

import (
	"context"
	"sync"

	"github.com/Veraticus/spice-audit/internal/model"
)

// MockWriter is a mock implementation of service.ReportWriter for testing.
type MockWriter struct {
	WriteFunc      func(ctx context.Context, batch *model.BatchResult) error
	LastBatch      *model.BatchResult
	WriteCalls     []WriteCall
	WriteCallCount int
	mu             sync.Mutex
}

// WriteCall represents a single call to Write.
type WriteCall struct {
	Error error
	Batch *model.BatchResult
}

// NewMockWriter creates a new mock writer.
func NewMockWriter() *MockWriter {
	return &MockWriter{
		WriteCalls: make([]WriteCall, 0),
	}
}

// Write records the call and returns the result of WriteFunc, if set.
func (m *MockWriter) Write(ctx context.Context, batch *model.BatchResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.WriteCallCount++
	m.LastBatch = batch

	var err error
	if m.WriteFunc != nil {
		err = m.WriteFunc(ctx, batch)
	}

	m.WriteCalls = append(m.WriteCalls, WriteCall{Batch: batch, Error: err})
	return err
}

// GetWriteCalls returns a copy of all write calls.
func (m *MockWriter) GetWriteCalls() []WriteCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]WriteCall, len(m.WriteCalls))
	copy(calls, m.WriteCalls)
	return calls
}

// SetWriteError configures the mock to fail every Write with err.
func (m *MockWriter) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.WriteFunc = func(context.Context, *model.BatchResult) error {
		return err
	}
}
