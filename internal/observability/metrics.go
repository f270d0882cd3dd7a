// File: internal/observability/metrics.go
package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the counters and histograms recorded during a run.
// Each instance owns its registry so runs and tests never share state.
type Metrics struct {
	Registry *prometheus.Registry

	outcomes      *prometheus.CounterVec
	actorDuration *prometheus.HistogramVec
	sessions      *prometheus.CounterVec
	pollAttempts  *prometheus.HistogramVec
	verdicts      *prometheus.CounterVec
}

// NewMetrics registers the run metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "e2e",
			Name:      "actor_outcomes_total",
			Help:      "Actor task outcomes by actor and status.",
		}, []string{"actor", "status"}),
		actorDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "e2e",
			Name:      "actor_duration_seconds",
			Help:      "Wall time of actor tasks.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}, []string{"actor"}),
		sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "e2e",
			Name:      "sessions_total",
			Help:      "Session contexts by kind and lifecycle event.",
		}, []string{"kind", "event"}),
		pollAttempts: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "e2e",
			Name:      "poll_attempts",
			Help:      "Attempts needed by resilient queries.",
			Buckets:   prometheus.LinearBuckets(1, 2, 10),
		}, []string{"query", "result"}),
		verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "e2e",
			Name:      "scenario_verdicts_total",
			Help:      "Scenario verdicts by result.",
		}, []string{"result"}),
	}
}

// RecordOutcome counts one finished actor task. A nil receiver is a no-op.
func (m *Metrics) RecordOutcome(actor, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(actor, status).Inc()
	m.actorDuration.WithLabelValues(actor).Observe(elapsed.Seconds())
}

// RecordSession counts a session lifecycle event ("acquired", "released", "acquire_failed").
func (m *Metrics) RecordSession(kind, event string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(kind, event).Inc()
}

// RecordPoll records how many attempts a named query needed.
func (m *Metrics) RecordPoll(query string, attempts int, timedOut bool) {
	if m == nil {
		return
	}
	result := "satisfied"
	if timedOut {
		result = "timeout"
	}
	m.pollAttempts.WithLabelValues(query, result).Observe(float64(attempts))
}

// RecordVerdict counts a scenario verdict.
func (m *Metrics) RecordVerdict(passed bool) {
	if m == nil {
		return
	}
	result := "failed"
	if passed {
		result = "passed"
	}
	m.verdicts.WithLabelValues(result).Inc()
}

// WriteTextfile exports the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
