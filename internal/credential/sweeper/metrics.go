package sweeper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Swept prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Swept: factory.NewCounter(prometheus.CounterOpts{
			Name: "certifier_credentials_swept_total",
			Help: "Credentials failed by the stuck-generation sweeper",
		}),
	}
}
