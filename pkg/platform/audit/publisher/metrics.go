package publisher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for audit publishing.
type Metrics struct {
	Emitted         *prometheus.CounterVec
	PersistFailures *prometheus.CounterVec
	PersistDuration prometheus.Histogram
}

// NewMetrics registers audit publisher metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Emitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "keystone_audit_events_emitted_total",
			Help: "Total number of audit events persisted, by category",
		}, []string{"category"}),
		PersistFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "keystone_audit_persist_failures_total",
			Help: "Total number of audit events that failed to persist, by category",
		}, []string{"category"}),
		PersistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "keystone_audit_persist_duration_seconds",
			Help:    "Time spent writing an audit event to its store",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}),
	}
}

func (m *Metrics) incEmitted(category string) {
	if m == nil {
		return
	}
	m.Emitted.WithLabelValues(category).Inc()
}

func (m *Metrics) incFailure(category string) {
	if m == nil {
		return
	}
	m.PersistFailures.WithLabelValues(category).Inc()
}

func (m *Metrics) observe(seconds float64) {
	if m == nil {
		return
	}
	m.PersistDuration.Observe(seconds)
}
