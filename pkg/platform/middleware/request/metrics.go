package request

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records HTTP latency and response classes per route pattern.
type Metrics struct {
	Latency   *prometheus.HistogramVec
	Responses *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certifier_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"route"}),
		Responses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certifier_http_responses_total",
			Help: "HTTP responses by route and status class",
		}, []string{"route", "class"}),
	}
}

// ObserveRequest records one served request. A zero status means the handler
// never wrote a header, which net/http answers with 200.
func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	if status == 0 {
		status = 200
	}
	m.Latency.WithLabelValues(route).Observe(elapsed.Seconds())
	m.Responses.WithLabelValues(route, strconv.Itoa(status/100)+"xx").Inc()
}
