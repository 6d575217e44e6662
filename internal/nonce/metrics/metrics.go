package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks nonce issuance and consumption.
type Metrics struct {
	Issued          *prometheus.CounterVec
	Consumed        *prometheus.CounterVec
	ConsumeDuration prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Issued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "anonpoll_nonce_issued_total",
			Help: "Nonces issued by purpose",
		}, []string{"purpose"}),
		Consumed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "anonpoll_nonce_consume_total",
			Help: "Nonce consumption attempts by purpose and result",
		}, []string{"purpose", "result"}), // result: "ok", "rejected", "error"
		ConsumeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "anonpoll_nonce_consume_duration_seconds",
			Help:    "Latency of atomic nonce consumption",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
	}
}

func (m *Metrics) IncIssued(purpose string) {
	if m != nil {
		m.Issued.WithLabelValues(purpose).Inc()
	}
}

func (m *Metrics) ObserveConsume(purpose, result string, d time.Duration) {
	if m != nil {
		m.Consumed.WithLabelValues(purpose, result).Inc()
		m.ConsumeDuration.Observe(d.Seconds())
	}
}
