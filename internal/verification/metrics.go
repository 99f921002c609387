package verification

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeValid     = "valid"
	outcomeRevoked   = "revoked"
	outcomeNotIssued = "not_issued"
	outcomeNotFound  = "not_found"
	outcomeMalformed = "malformed"
	outcomeError     = "error"
)

type Metrics struct {
	Lookups *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certifier_verification_lookups_total",
			Help: "Public verification lookups by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) lookup(outcome string) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(outcome).Inc()
}
