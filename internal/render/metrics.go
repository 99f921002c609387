package render

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RenderDuration *prometheus.HistogramVec
	RenderFailures *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RenderDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certifier_render_duration_seconds",
			Help:    "Time spent rendering credential artifacts",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"format"}),
		RenderFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certifier_render_failures_total",
			Help: "Render failures by kind",
		}, []string{"kind"}),
	}
}

func (m *Metrics) ObserveRender(format Format, kind Kind, d time.Duration) {
	m.RenderDuration.WithLabelValues(string(format)).Observe(d.Seconds())
	if kind != "" {
		m.RenderFailures.WithLabelValues(string(kind)).Inc()
	}
}
