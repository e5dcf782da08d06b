package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the process-wide Prometheus metrics: ledger operations,
// oracle lookups, payouts and the outbox relay.
type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	OracleLookups     *prometheus.CounterVec
	PayoutsDispatched *prometheus.CounterVec
	OutboxPublished   prometheus.Counter
	OutboxFailures    prometheus.Counter
}

// New creates and registers all process metrics with reg. Passing nil uses the
// default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "impactledger_operations_total",
			Help: "Ledger operations by name and result code",
		}, []string{"op", "code"}),

		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "impactledger_operation_duration_seconds",
			Help:    "Duration of ledger operations including lock wait",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"op"}),

		OracleLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "impactledger_oracle_lookups_total",
			Help: "Rate lookups by source and outcome",
		}, []string{"source", "outcome"}), // outcome: "hit", "miss", "error"

		PayoutsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "impactledger_payouts_dispatched_total",
			Help: "Outgoing transfers handed to the transferor by kind and status",
		}, []string{"kind", "status"}),

		OutboxPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "impactledger_outbox_published_total",
			Help: "Ledger events relayed from the outbox to Kafka",
		}),

		OutboxFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "impactledger_outbox_failures_total",
			Help: "Outbox relay batches that failed to publish",
		}),
	}
}

// ObserveOperation records one ledger operation outcome.
func (m *Metrics) ObserveOperation(op, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, code).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) IncrementOracleLookup(source, outcome string) {
	if m != nil {
		m.OracleLookups.WithLabelValues(source, outcome).Inc()
	}
}

func (m *Metrics) IncrementPayout(kind, status string) {
	if m != nil {
		m.PayoutsDispatched.WithLabelValues(kind, status).Inc()
	}
}

func (m *Metrics) AddOutboxPublished(n int) {
	if m != nil {
		m.OutboxPublished.Add(float64(n))
	}
}

func (m *Metrics) IncrementOutboxFailure() {
	if m != nil {
		m.OutboxFailures.Inc()
	}
}
