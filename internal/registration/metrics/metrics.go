package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registration orchestrator.
// All methods are safe on a nil receiver.
type Metrics struct {
	// Transitions by resulting status
	Transitions *prometheus.CounterVec

	// Rejected transition attempts by reason: invalid_state, conflict, expired
	TransitionRejections *prometheus.CounterVec

	EmailDeliveries *prometheus.CounterVec
	ResendRejected  prometheus.Counter

	CreationDuration prometheus.Histogram
	CreationFailures *prometheus.CounterVec
	Compensations    prometheus.Counter
	Orphans          *prometheus.CounterVec

	EventDeliveryFailures prometheus.Counter
}

// New registers the registration metrics with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registration_transitions_total",
			Help: "Registration state transitions by resulting status",
		}, []string{"status"}),

		TransitionRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registration_transition_rejections_total",
			Help: "Registration operations rejected before a transition, by reason",
		}, []string{"reason"}),

		EmailDeliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registration_verification_emails_total",
			Help: "Verification email attempts by outcome",
		}, []string{"outcome"}), // outcome: "sent", "failed"

		ResendRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "registration_resend_rejected_total",
			Help: "Resend requests rejected at the attempt cap",
		}),

		CreationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "registration_creation_duration_seconds",
			Help:    "Duration of the entity creation saga including compensation",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		CreationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registration_creation_failures_total",
			Help: "Creation saga failures by the entity that failed",
		}, []string{"entity"}),

		Compensations: f.NewCounter(prometheus.CounterOpts{
			Name: "registration_compensations_total",
			Help: "Creation saga runs that rolled back at least one record",
		}),

		Orphans: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registration_orphaned_records_total",
			Help: "Records left behind because their compensating delete failed",
		}, []string{"entity"}),

		EventDeliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "registration_event_delivery_failures_total",
			Help: "Registration events that could not be handed to the event sink",
		}),
	}
}

func (m *Metrics) IncrementTransition(status string) {
	if m != nil {
		m.Transitions.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) IncrementRejection(reason string) {
	if m != nil {
		m.TransitionRejections.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncrementEmail(sent bool) {
	if m == nil {
		return
	}
	outcome := "sent"
	if !sent {
		outcome = "failed"
	}
	m.EmailDeliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementResendRejected() {
	if m != nil {
		m.ResendRejected.Inc()
	}
}

func (m *Metrics) ObserveCreation(d time.Duration) {
	if m != nil {
		m.CreationDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementCreationFailure(entity string) {
	if m != nil {
		m.CreationFailures.WithLabelValues(entity).Inc()
	}
}

func (m *Metrics) IncrementCompensation() {
	if m != nil {
		m.Compensations.Inc()
	}
}

func (m *Metrics) IncrementOrphan(entity string) {
	if m != nil {
		m.Orphans.WithLabelValues(entity).Inc()
	}
}

func (m *Metrics) IncrementEventFailure() {
	if m != nil {
		m.EventDeliveryFailures.Inc()
	}
}
