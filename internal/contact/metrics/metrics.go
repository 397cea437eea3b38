package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for contact reconciliation.
type Metrics struct {
	// Reconciliation outcomes by kind: created, extended, merged, unchanged, failed
	Outcomes *prometheus.CounterVec

	// Attempts retried after a concurrent writer invalidated the match
	Retries prometheus.Counter

	// Contacts demoted from primary by merges
	Demotions prometheus.Counter

	ReconcileLatency prometheus.Histogram
	LockWait         prometheus.Histogram

	// Events that could not be handed to the broker, by event type
	PublishFailures *prometheus.CounterVec
}

// New registers the contact metrics with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the contact metrics with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "contact_reconcile_outcomes_total",
			Help: "Total reconciliations by outcome",
		}, []string{"outcome"}),

		Retries: factory.NewCounter(prometheus.CounterOpts{
			Name: "contact_reconcile_retries_total",
			Help: "Reconciliation attempts retried after a write conflict",
		}),

		Demotions: factory.NewCounter(prometheus.CounterOpts{
			Name: "contact_demotions_total",
			Help: "Primary contacts demoted to secondary by a merge",
		}),

		ReconcileLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "contact_reconcile_duration_seconds",
			Help:    "Duration of a reconciliation including retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		LockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "contact_lock_wait_seconds",
			Help:    "Time spent waiting for reconciliation locks",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),

		PublishFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "contact_event_publish_failures_total",
			Help: "Contact events that failed to publish",
		}, []string{"type"}),
	}
}

func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.Outcomes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementRetries() {
	if m != nil {
		m.Retries.Inc()
	}
}

func (m *Metrics) AddDemotions(n int) {
	if m != nil && n > 0 {
		m.Demotions.Add(float64(n))
	}
}

func (m *Metrics) ObserveReconcileLatency(d time.Duration) {
	if m != nil {
		m.ReconcileLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m != nil {
		m.LockWait.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementPublishFailures(eventType string) {
	if m != nil {
		m.PublishFailures.WithLabelValues(eventType).Inc()
	}
}
