package publisher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "provenance/pkg/platform/audit"
)

// Metrics holds Prometheus metrics for audit emission.
type Metrics struct {
	Emitted         *prometheus.CounterVec
	Dropped         prometheus.Counter
	PersistFailures prometheus.Counter
}

// NewMetrics registers the publisher metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Emitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "provenance_audit_events_emitted_total",
			Help: "Total number of audit events persisted, by category",
		}, []string{"category"}),
		Dropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "provenance_audit_events_dropped_total",
			Help: "Total number of audit events dropped because the buffer was full",
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "provenance_audit_persist_failures_total",
			Help: "Total number of audit event persistence failures",
		}),
	}
}

func (m *Metrics) incEmitted(category audit.EventCategory) {
	if m != nil {
		m.Emitted.WithLabelValues(string(category)).Inc()
	}
}

func (m *Metrics) incDropped() {
	if m != nil {
		m.Dropped.Inc()
	}
}

func (m *Metrics) incPersistFailures() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}
