package retrieval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Outcomes tracks retrieval results by source or failure class
	Outcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcript_retrievals_total",
			Help: "Total transcript retrievals by outcome",
		},
		[]string{"outcome"}, // "cache", "upstream", or a failure class
	)

	// RetrievalDuration tracks caller-visible latency
	RetrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transcript_retrieval_duration_seconds",
			Help:    "Time to answer a transcript retrieval",
			Buckets: []float64{.005, .05, .25, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	// SharedFlights tracks callers answered by a fetch that served several callers
	SharedFlights = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transcript_singleflight_shared_total",
		Help: "Total retrievals answered by an upstream fetch shared with other callers",
	})

	// AbandonedFlights tracks upstream fetches left running after the deadline
	AbandonedFlights = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transcript_singleflight_abandoned_total",
		Help: "Total retrievals that stopped waiting on an in-flight upstream fetch",
	})
)
