package core

import "github.com/prometheus/client_golang/prometheus"

const namespace = "smartes"

// Metrics describes metrics for the core package
type Metrics struct {
	// Revisions counts replayed revisions, by outcome (cached, computed)
	Revisions *prometheus.CounterVec

	// Requests counts served requests, by outcome (ok, invalid_reference, not_found, interrupted, internal)
	Requests *prometheus.CounterVec

	// ReplayDuration observes the time taken to replay the history of a reference
	ReplayDuration prometheus.Histogram
}

// NewMetrics builds the service collectors and registers them, unless reg is nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Revisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revisions_total",
			Help:      "Number of revisions replayed, by outcome.",
		}, []string{"outcome"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Number of file requests, by outcome.",
		}, []string{"outcome"}),
		ReplayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "replay_duration_seconds",
			Help:      "Time taken to replay the history of a reference.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Revisions, m.Requests, m.ReplayDuration)
	}
	return m
}
