package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	Checks        *prometheus.CounterVec
	Attacks       *prometheus.CounterVec
	CheckDuration *prometheus.HistogramVec
	Panics        *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg. A nil reg gets a private
// registry that is never scraped.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		Checks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rasp_checks_total",
			Help: "Total number of algorithm checks by decision.",
		}, []string{"algorithm", "decision"}),

		Attacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rasp_attacks_total",
			Help: "Total number of recorded attacks.",
		}, []string{"algorithm", "blocked"}),

		CheckDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rasp_check_duration_seconds",
			Help:    "Histogram of algorithm check latencies.",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
		}, []string{"algorithm"}),

		Panics: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rasp_check_panics_total",
			Help: "Algorithm checks that panicked and were allowed.",
		}, []string{"algorithm"}),
	}
}
