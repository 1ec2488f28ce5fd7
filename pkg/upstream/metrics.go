package upstream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpstreamCalls tracks dispatched upstream calls
	UpstreamCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcript_upstream_calls_total",
			Help: "Total number of upstream transcript fetches",
		},
		[]string{"route", "result"}, // route: "proxy", "direct"; result: "success", "error"
	)

	// UpstreamDuration tracks upstream call latency
	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transcript_upstream_duration_seconds",
			Help:    "Upstream transcript fetch duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"route"},
	)

	// UpstreamPacingWait tracks time spent waiting for an outbound slot
	UpstreamPacingWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "transcript_upstream_pacing_wait_seconds",
			Help:    "Time spent waiting on the outbound rate limiter",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
	)
)
