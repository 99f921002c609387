package webhook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the dispatcher's instrumentation. Outcomes are success, retry,
// failed and abandoned.
type Metrics struct {
	Deliveries      *prometheus.CounterVec
	AttemptDuration prometheus.Histogram
	QueueFull       prometheus.Counter
	Backlogged      prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certifier_webhook_deliveries_total",
			Help: "Webhook delivery attempts by event and outcome",
		}, []string{"event", "outcome"}),
		AttemptDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "certifier_webhook_attempt_duration_seconds",
			Help:    "Duration of outbound webhook requests",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		QueueFull: factory.NewCounter(prometheus.CounterOpts{
			Name: "certifier_webhook_queue_full_total",
			Help: "Deliveries deferred to the retry poller because the queue was full",
		}),
		Backlogged: factory.NewCounter(prometheus.CounterOpts{
			Name: "certifier_webhook_tenant_backlogged_total",
			Help: "Deliveries parked behind their tenant's concurrency limit",
		}),
	}
}
