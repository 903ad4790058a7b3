package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors on its own registry.
//
//   - meetcast_runs_total{status}
//   - meetcast_run_duration_seconds{status}
//   - meetcast_capability_calls_total{capability,op,outcome}
//   - meetcast_degradations_total{capability}
//   - meetcast_clarifications_total
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	RunsTotal           *prometheus.CounterVec
	RunDuration         *prometheus.HistogramVec
	CapabilityCalls     *prometheus.CounterVec
	DegradationsTotal   *prometheus.CounterVec
	ClarificationsTotal prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		RunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meetcast",
				Name:      "runs_total",
				Help:      "Pipeline runs by final status.",
			},
			[]string{"status"},
		),
		RunDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "meetcast",
				Name:      "run_duration_seconds",
				Help:      "Wall time of a pipeline run.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 15, 30},
			},
			[]string{"status"},
		),
		CapabilityCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meetcast",
				Name:      "capability_calls_total",
				Help:      "External capability calls by outcome (ok, retry, error).",
			},
			[]string{"capability", "op", "outcome"},
		),
		DegradationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meetcast",
				Name:      "degradations_total",
				Help:      "Assessments replaced by a degraded placeholder.",
			},
			[]string{"capability"},
		),
		ClarificationsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "meetcast",
				Name:      "clarifications_total",
				Help:      "Runs that stopped to ask for clarification.",
			},
		),
	}
}

func (m *Metrics) Call(capability, op, outcome string) {
	if m == nil {
		return
	}
	m.CapabilityCalls.WithLabelValues(capability, op, outcome).Inc()
}

func (m *Metrics) Degraded(capability string) {
	if m == nil {
		return
	}
	m.DegradationsTotal.WithLabelValues(capability).Inc()
}

func (m *Metrics) Clarification() {
	if m == nil {
		return
	}
	m.ClarificationsTotal.Inc()
}

func (m *Metrics) Run(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}
