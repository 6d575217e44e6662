package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the vote pipeline.
type Metrics struct {
	// Outcomes by terminal status or rejection code
	Outcomes *prometheus.CounterVec

	// Latency per pipeline stage
	StageLatency *prometheus.HistogramVec

	// Commit attempts beyond the first
	CommitRetries prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "anonpoll_vote_outcomes_total",
			Help: "Vote submissions by outcome",
		}, []string{"outcome"}),
		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "anonpoll_vote_stage_duration_seconds",
			Help:    "Duration of vote pipeline stages",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}, []string{"stage"}),
		CommitRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "anonpoll_vote_commit_retries_total",
			Help: "Commit attempts retried after a storage error",
		}),
	}
}

func (m *Metrics) IncOutcome(outcome string) {
	if m != nil {
		m.Outcomes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m != nil {
		m.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
	}
}

func (m *Metrics) IncCommitRetry() {
	if m != nil {
		m.CommitRetries.Inc()
	}
}
