package cli

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/Veraticus/spice-audit/internal/model"
	"github.com/schollz/progressbar/v3"
)

// Progress renders batch progress as a terminal progress bar. It
// implements engine.ProgressReporter.
type Progress struct {
	writer io.Writer
	bar    *progressbar.ProgressBar
	counts map[model.RowOutcome]int
	mu     sync.Mutex
}

// NewProgress creates a progress reporter writing to w.
func NewProgress(w io.Writer) *Progress {
	return &Progress{
		writer: w,
		counts: make(map[model.RowOutcome]int),
	}
}

// Start begins a bar over total rows.
func (p *Progress) Start(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.counts = make(map[model.RowOutcome]int)
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Classifying expenses...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(p.writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}

// Advance moves the bar one row and tallies the outcome.
func (p *Progress) Advance(outcome model.RowOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.counts[outcome]++
	if p.bar == nil {
		return
	}
	if p.counts[model.OutcomeDegraded]+p.counts[model.OutcomeSkipped] > 0 {
		p.bar.Describe(fmt.Sprintf("[cyan][bold]Classifying expenses...[reset] [yellow]%d degraded[reset] [red]%d skipped[reset]",
			p.counts[model.OutcomeDegraded], p.counts[model.OutcomeSkipped]))
	}
	if err := p.bar.Add(1); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
}

// Finish completes the bar.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil {
		return
	}
	if err := p.bar.Finish(); err != nil {
		slog.Warn("Failed to finish progress bar", "error", err)
	}
	p.bar = nil
}

// Count returns how many rows ended with outcome.
func (p *Progress) Count(outcome model.RowOutcome) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[outcome]
}
