package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the route-query instruments.
type Metrics struct {
	requests   *prometheus.CounterVec
	latency    prometheus.Histogram
	expansions prometheus.Histogram
}

// NewMetrics registers the route metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pathforge_route_requests_total",
			Help: "Route requests by outcome.",
		}, []string{"outcome"}),
		latency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pathforge_route_duration_seconds",
			Help:    "Time spent answering route requests that reached the engine.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		expansions: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pathforge_route_expanded_nodes",
			Help:    "Nodes settled by A* per route request.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 12),
		}),
	}
}

func (m *Metrics) observe(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}
