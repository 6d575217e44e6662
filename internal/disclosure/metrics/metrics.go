package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for aggregate queries.
type Metrics struct {
	// Results queries by outcome (served, small_poll, error)
	Queries *prometheus.CounterVec

	// Cells withheld, by kind (option, cohort, dimension, security)
	Suppressed *prometheus.CounterVec

	OverlapDenials prometheus.Counter

	QueryLatency prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Queries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "anonpoll_disclosure_queries_total",
			Help: "Aggregate queries by outcome",
		}, []string{"outcome"}),
		Suppressed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "anonpoll_disclosure_suppressed_total",
			Help: "Cells withheld under the k threshold",
		}, []string{"kind"}),
		OverlapDenials: f.NewCounter(prometheus.CounterOpts{
			Name: "anonpoll_disclosure_overlap_denials_total",
			Help: "Breakdown requests denied as overlapping a previous query",
		}),
		QueryLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "anonpoll_disclosure_query_duration_seconds",
			Help:    "Duration of aggregate queries",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncQuery(outcome string) {
	if m != nil {
		m.Queries.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) AddSuppressed(kind string, n int) {
	if m != nil && n > 0 {
		m.Suppressed.WithLabelValues(kind).Add(float64(n))
	}
}

func (m *Metrics) IncOverlapDenied() {
	if m != nil {
		m.OverlapDenials.Inc()
	}
}

func (m *Metrics) ObserveQuery(d time.Duration) {
	if m != nil {
		m.QueryLatency.Observe(d.Seconds())
	}
}
