package activity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Persisted    *prometheus.CounterVec
	Dropped      *prometheus.CounterVec
	SinkFailures prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Persisted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certifier_activity_persisted_total",
			Help: "Activity entries written to the store by kind and outcome",
		}, []string{"kind", "outcome"}),
		Dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certifier_activity_dropped_total",
			Help: "Activity entries dropped before persistence",
		}, []string{"reason"}),
		SinkFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "certifier_activity_sink_failures_total",
			Help: "Activity entries the stream sink failed to accept",
		}),
	}
}
