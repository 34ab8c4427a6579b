package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the celebration lifecycle.
type Metrics struct {
	Created         prometheus.Counter
	IdempotentHits  prometheus.Counter
	LimitRejections *prometheus.CounterVec
	Transitions     *prometheus.CounterVec
	Captures        *prometheus.CounterVec
	StaleConflicts  prometheus.Counter
	CaptureDuration prometheus.Histogram
	PledgedCents    prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Created: promauto.NewCounter(prometheus.CounterOpts{
			Name: "celebrate_celebrations_created_total",
			Help: "Celebrations created",
		}),
		IdempotentHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "celebrate_celebrations_idempotent_replays_total",
			Help: "Create requests answered with an existing celebration",
		}),
		LimitRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "celebrate_celebrations_limit_rejections_total",
			Help: "Create or resume requests blocked by a contribution limit",
		}, []string{"tier", "reason"}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "celebrate_celebrations_transitions_total",
			Help: "Status transitions by target status",
		}, []string{"to"}),
		Captures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "celebrate_celebrations_captures_total",
			Help: "Capture attempts by outcome",
		}, []string{"outcome"}),
		StaleConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "celebrate_celebrations_stale_conflicts_total",
			Help: "Conditional updates lost to a concurrent writer",
		}),
		CaptureDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "celebrate_celebrations_capture_seconds",
			Help:    "Payment capture latency",
			Buckets: prometheus.DefBuckets,
		}),
		PledgedCents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "celebrate_celebrations_pledged_cents_total",
			Help: "Donation cents authorized into escrow",
		}),
	}
}

func (m *Metrics) IncCreated()               { m.Created.Inc() }
func (m *Metrics) IncIdempotentHit()         { m.IdempotentHits.Inc() }
func (m *Metrics) IncStaleConflict()         { m.StaleConflicts.Inc() }
func (m *Metrics) IncTransition(to string)   { m.Transitions.WithLabelValues(to).Inc() }
func (m *Metrics) IncCapture(outcome string) { m.Captures.WithLabelValues(outcome).Inc() }
func (m *Metrics) AddPledged(cents int64)    { m.PledgedCents.Add(float64(cents)) }

func (m *Metrics) ObserveCapture(seconds float64) { m.CaptureDuration.Observe(seconds) }
func (m *Metrics) IncLimitRejection(tier, reason string) {
	m.LimitRejections.WithLabelValues(tier, reason).Inc()
}
