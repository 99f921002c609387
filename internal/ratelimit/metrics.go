package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certifier_ratelimit_decisions_total",
			Help: "Rate limit decisions by scope and result (allowed, limited, error)",
		}, []string{"scope", "result"}),
	}
}

func (m *Metrics) decision(scope, result string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(scope, result).Inc()
}
