// Package metrics exposes pipeline measurements to Prometheus.
package metrics

import (
	"time"

	"github.com/Veraticus/spice-audit/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "spice_audit"

// Recorder implements engine.Recorder on top of Prometheus collectors.
type Recorder struct {
	batches      *prometheus.CounterVec
	rows         *prometheus.CounterVec
	generation   *prometheus.HistogramVec
	backendReady prometheus.Gauge
}

// New registers the pipeline collectors with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		batches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Total number of batches by final status",
			},
			[]string{"status"},
		),
		rows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_total",
				Help:      "Total number of rows by outcome",
			},
			[]string{"outcome"},
		),
		generation: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_seconds",
				Help:      "Duration of backend generation calls in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"result"},
		),
		backendReady: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "backend_ready",
				Help:      "Whether the generation backend has initialized (1) or not (0)",
			},
		),
	}
}

// ObserveBatch counts a finished or rejected batch.
func (r *Recorder) ObserveBatch(status string) {
	r.batches.WithLabelValues(status).Inc()
}

// ObserveRow counts one row outcome.
func (r *Recorder) ObserveRow(outcome model.RowOutcome) {
	r.rows.WithLabelValues(outcome.String()).Inc()
}

// ObserveGeneration records the duration of one generation call.
func (r *Recorder) ObserveGeneration(elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.generation.WithLabelValues(result).Observe(elapsed.Seconds())
}

// SetBackendReady reports backend readiness.
func (r *Recorder) SetBackendReady(ready bool) {
	if ready {
		r.backendReady.Set(1)
		return
	}
	r.backendReady.Set(0)
}
