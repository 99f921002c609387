package issuance

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts coordinator operations by outcome: ok, failed, rejected
// and error.
type Metrics struct {
	Operations *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
	BatchItems *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certifier_issuance_operations_total",
			Help: "Issuance operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certifier_issuance_duration_seconds",
			Help:    "End to end duration of issuance operations",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
		BatchItems: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certifier_issuance_batch_items_total",
			Help: "Batch items by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) observe(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, outcome).Inc()
	m.Duration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) batchItem(result string) {
	if m == nil {
		return
	}
	m.BatchItems.WithLabelValues(result).Inc()
}
