package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/course-enrollment/internal/model"
)

// Outcomes recorded on the reservation counter.
const (
	OutcomeOK         = "ok"
	OutcomeRejected   = "rejected" // business rule or validation failure
	OutcomeFailed     = "failed"   // infrastructure failure
	OutcomeIdempotent = "idempotent"
)

// Metrics groups the enrollment collectors.  A nil *Metrics is valid and
// records nothing, which keeps tests free of registry plumbing.
type Metrics struct {
	reservations    *prometheus.CounterVec
	compensations   *prometheus.CounterVec
	capacity        *prometheus.GaugeVec
	confirmDuration prometheus.Histogram
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		reservations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enrollment_reservations_total",
				Help: "Reservation operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		compensations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enrollment_compensations_total",
				Help: "Receipt deletions issued after a failed confirmation",
			},
			[]string{"outcome"},
		),
		capacity: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "enrollment_capacity",
				Help: "Last observed capacity ledger",
			},
			[]string{"kind"},
		),
		confirmDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "enrollment_confirm_duration_seconds",
				Help:    "Duration of confirm calls including the receipt upload",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
	}
}

func (m *Metrics) Reservation(operation, outcome string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) Compensation(ok bool) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if !ok {
		outcome = OutcomeFailed
	}
	m.compensations.WithLabelValues(outcome).Inc()
}

// ObserveCapacity publishes the ledger snapshot as gauges.
func (m *Metrics) ObserveCapacity(a model.Availability) {
	if m == nil {
		return
	}
	m.capacity.WithLabelValues("total").Set(float64(a.Total))
	m.capacity.WithLabelValues("taken").Set(float64(a.Taken))
	m.capacity.WithLabelValues("left").Set(float64(a.Left))
}

func (m *Metrics) ObserveConfirm(d time.Duration) {
	if m == nil {
		return
	}
	m.confirmDuration.Observe(d.Seconds())
}

// Handler exposes g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
