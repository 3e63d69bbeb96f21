package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts searches by strategy and terminal fallback state, and
// tracks end-to-end search latency.
type Metrics struct {
	searches *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewMetrics registers the search metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		searches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentmem",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Search requests by strategy and terminal fallback state.",
		}, []string{"strategy", "state"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "agentmem",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "End-to-end search latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observe(strategy, state string, seconds float64) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(strategy, state).Inc()
	m.duration.Observe(seconds)
}
