package quota

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Admitted *prometheus.CounterVec
	Rejected *prometheus.CounterVec
	Released *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Admitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certifier_quota_admitted_total",
			Help: "Operations admitted by the quota gate",
		}, []string{"kind"}),
		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certifier_quota_rejected_total",
			Help: "Operations rejected by the quota gate, by reason",
		}, []string{"kind", "reason"}),
		Released: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certifier_quota_released_total",
			Help: "Admissions given back because the operation never took effect",
		}, []string{"kind"}),
	}
}

func (m *Metrics) ObserveAdmission(kind Kind, adm Admission) {
	if adm.OK {
		m.Admitted.WithLabelValues(string(kind)).Inc()
		return
	}
	m.Rejected.WithLabelValues(string(kind), string(adm.Reason)).Inc()
}
