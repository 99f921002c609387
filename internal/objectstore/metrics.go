package objectstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Uploads        *prometheus.CounterVec
	UploadRetries  prometheus.Counter
	UploadDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certifier_object_uploads_total",
			Help: "Artifact uploads by kind and outcome",
		}, []string{"kind", "outcome"}),
		UploadRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "certifier_object_upload_retries_total",
			Help: "Upload attempts beyond the first",
		}),
		UploadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "certifier_object_upload_duration_seconds",
			Help:    "Wall time of an upload including retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

func (m *Metrics) ObserveUpload(kind Kind, ok bool, attempts int, d time.Duration) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.Uploads.WithLabelValues(string(kind), outcome).Inc()
	if attempts > 1 {
		m.UploadRetries.Add(float64(attempts - 1))
	}
	m.UploadDuration.Observe(d.Seconds())
}
