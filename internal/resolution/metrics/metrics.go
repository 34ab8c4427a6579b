package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks bill triggers and the background escrow jobs.
type Metrics struct {
	Outcomes      *prometheus.CounterVec
	BatchDuration prometheus.Histogram
	BillsPolled   *prometheus.CounterVec
	Retries       *prometheus.CounterVec
	RetryQueue    prometheus.Gauge
	Expired       prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "celebrate_resolution_outcomes_total",
			Help: "Per-celebration results of bill resolution batches",
		}, []string{"operation", "outcome"}),
		BatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "celebrate_resolution_batch_seconds",
			Help:    "Time to process every open celebration for one bill",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		BillsPolled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "celebrate_resolution_bills_polled_total",
			Help: "Legislative status lookups by result",
		}, []string{"status"}),
		Retries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "celebrate_resolution_capture_retries_total",
			Help: "Capture retry attempts by outcome",
		}, []string{"outcome"}),
		RetryQueue: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "celebrate_resolution_capture_retry_queue",
			Help: "Celebrations waiting for a capture retry",
		}),
		Expired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "celebrate_resolution_expired_total",
			Help: "Celebrations marked defunct after the escrow window",
		}),
	}
}

func (m *Metrics) IncOutcome(operation, outcome string) {
	m.Outcomes.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) ObserveBatch(seconds float64) { m.BatchDuration.Observe(seconds) }
func (m *Metrics) IncBillPolled(status string)  { m.BillsPolled.WithLabelValues(status).Inc() }
func (m *Metrics) IncRetry(outcome string)      { m.Retries.WithLabelValues(outcome).Inc() }
func (m *Metrics) SetRetryQueue(n int)          { m.RetryQueue.Set(float64(n)) }
func (m *Metrics) AddExpired(n int)             { m.Expired.Add(float64(n)) }
