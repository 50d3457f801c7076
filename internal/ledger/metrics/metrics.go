package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the ledger's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Commands          *prometheus.CounterVec
	CommandDuration   *prometheus.HistogramVec
	CustodyTransfers  *prometheus.CounterVec
	ListingsFulfilled *prometheus.CounterVec
	PaymentFailures   prometheus.Counter
	PaymentReversals  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_commands_total",
			Help: "Ledger commands by operation and outcome code",
		}, []string{"operation", "outcome"}),
		CommandDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_command_duration_seconds",
			Help:    "Time spent inside a ledger transaction",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"operation"}),
		CustodyTransfers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_custody_transfers_total",
			Help: "Committed custody moves by reason",
		}, []string{"reason"}),
		ListingsFulfilled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_listings_fulfilled_total",
			Help: "Committed purchases by asset kind",
		}, []string{"kind"}),
		PaymentFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_payment_failures_total",
			Help: "Purchases aborted because the payment authority refused or failed",
		}),
		PaymentReversals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_payment_reversals_total",
			Help: "Settled payments reversed after a failed commit, by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) ObserveCommand(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(operation, outcome).Inc()
	m.CommandDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) IncCustodyTransfer(reason string) {
	if m == nil {
		return
	}
	m.CustodyTransfers.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncListingFulfilled(kind string) {
	if m == nil {
		return
	}
	m.ListingsFulfilled.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncPaymentFailure() {
	if m == nil {
		return
	}
	m.PaymentFailures.Inc()
}

func (m *Metrics) IncPaymentReversal(result string) {
	if m == nil {
		return
	}
	m.PaymentReversals.WithLabelValues(result).Inc()
}
