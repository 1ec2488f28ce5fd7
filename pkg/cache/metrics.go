package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	backendMemory = "memory"
	backendRedis  = "redis"
)

var (
	// CacheHits tracks cache hits by backend
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcript_cache_hits_total",
			Help: "Total number of transcript cache hits",
		},
		[]string{"backend"},
	)

	// CacheMisses tracks cache misses by backend
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcript_cache_misses_total",
			Help: "Total number of transcript cache misses",
		},
		[]string{"backend"},
	)

	// CacheEntries tracks the number of live entries (memory backend only)
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "transcript_cache_entries",
			Help: "Current number of cached transcripts",
		},
		[]string{"backend"},
	)

	// CacheEvictions tracks entries removed before being read again
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcript_cache_evictions_total",
			Help: "Total number of evicted cache entries",
		},
		[]string{"reason"}, // "expired", "capacity"
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcript_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "put", "invalidate", "clear", "stats"
	)
)
