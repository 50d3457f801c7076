package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the HTTP-level Prometheus metrics.
type Metrics struct {
	RequestLatency  *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	IdempotentHits  prometheus.Counter
	IdempotencyErrs prometheus.Counter
}

// New registers the metrics on reg. Pass prometheus.NewRegistry() in tests so
// repeated construction does not collide on the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_http_requests_total",
			Help: "HTTP requests by route, method and status class",
		}, []string{"method", "route", "status"}),
		IdempotentHits: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_http_idempotent_replays_total",
			Help: "Requests rejected because their Idempotency-Key was already used",
		}),
		IdempotencyErrs: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_http_idempotency_errors_total",
			Help: "Idempotency store failures; the request proceeds without protection",
		}),
	}
}

func (m *Metrics) ObserveRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestLatency.WithLabelValues(method, route).Observe(seconds)
	m.RequestsTotal.WithLabelValues(method, route, status).Inc()
}

func (m *Metrics) IncIdempotentHit() {
	if m == nil {
		return
	}
	m.IdempotentHits.Inc()
}

func (m *Metrics) IncIdempotencyError() {
	if m == nil {
		return
	}
	m.IdempotencyErrs.Inc()
}
