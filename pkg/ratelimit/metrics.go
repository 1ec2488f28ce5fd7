package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Decisions tracks admission outcomes
	Decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcript_rate_limit_decisions_total",
			Help: "Total number of rate limit decisions",
		},
		[]string{"result"}, // "allowed", "rejected", "error"
	)

	// ActiveWindows tracks windows held by the in-memory limiter
	ActiveWindows = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "transcript_rate_limit_active_windows",
		Help: "Number of client windows tracked in memory after the last sweep",
	})
)
