package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "certissuer"

// Issuance holds the counters recorded by the issuance workflow.
type Issuance struct {
	runs       *prometheus.CounterVec
	duration   prometheus.Histogram
	challenges *prometheus.CounterVec
}

// NewIssuance registers the issuance metrics on reg.
func NewIssuance(reg prometheus.Registerer) *Issuance {
	f := promauto.With(reg)
	return &Issuance{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issuances_total",
			Help:      "Issuance attempts by outcome and failing phase",
		}, []string{"outcome", "phase"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "issuance_duration_seconds",
			Help:      "Wall time of issuance attempts",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),
		challenges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "challenge_publications_total",
			Help:      "HTTP-01 responses published, by backend",
		}, []string{"backend"}),
	}
}

// ObserveRun records one finished issuance. phase is empty on success.
func (m *Issuance) ObserveRun(outcome, phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome, phase).Inc()
	m.duration.Observe(d.Seconds())
}

// ObservePublication records one published challenge response.
func (m *Issuance) ObservePublication(backend string) {
	if m == nil {
		return
	}
	m.challenges.WithLabelValues(backend).Inc()
}
