package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the domains module.
type Metrics struct {
	DomainsCreated    prometheus.Counter
	DomainsDeleted    prometheus.Counter
	CascadeDeleted    *prometheus.CounterVec
	DeleteDuration    prometheus.Histogram
	CacheLookups      *prometheus.CounterVec
	StoreCircuitState prometheus.Gauge
}

// New registers the domains metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DomainsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "keystone_domains_created_total",
			Help: "Total number of domains created",
		}),
		DomainsDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "keystone_domains_deleted_total",
			Help: "Total number of domains deleted",
		}),
		CascadeDeleted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "keystone_domain_cascade_deleted_total",
			Help: "Resources removed by domain deletion, by kind",
		}, []string{"kind"}),
		DeleteDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "keystone_domain_delete_duration_seconds",
			Help:    "Duration of domain deletion including the cascade",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "keystone_domain_cache_lookups_total",
			Help: "Domain cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
		StoreCircuitState: f.NewGauge(prometheus.GaugeOpts{
			Name: "keystone_domain_store_circuit_open",
			Help: "1 while the domain store circuit breaker is open",
		}),
	}
}

func (m *Metrics) IncrementCreated() {
	if m == nil {
		return
	}
	m.DomainsCreated.Inc()
}

// ObserveDelete records a finished deletion and its cascade counts.
// Call with time.Now() taken at the start of the operation.
func (m *Metrics) ObserveDelete(start time.Time, counts map[string]int) {
	if m == nil {
		return
	}
	m.DomainsDeleted.Inc()
	m.DeleteDuration.Observe(time.Since(start).Seconds())
	for kind, n := range counts {
		m.CascadeDeleted.WithLabelValues(kind).Add(float64(n))
	}
}

func (m *Metrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) SetCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.StoreCircuitState.Set(1)
		return
	}
	m.StoreCircuitState.Set(0)
}
