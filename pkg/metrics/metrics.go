// Package metrics exposes the Prometheus endpoint and HTTP request metrics.
// Domain collectors live in their own packages (cache, ratelimit, upstream,
// retrieval) and register with the default registry via promauto.
//
// Example Prometheus queries:
//
//	# Cache hit rate
//	sum(rate(transcript_cache_hits_total[5m])) /
//	(sum(rate(transcript_cache_hits_total[5m])) + sum(rate(transcript_cache_misses_total[5m])))
//
//	# Rejected share of inbound requests
//	rate(transcript_rate_limit_decisions_total{result="rejected"}[5m]) /
//	sum(rate(transcript_rate_limit_decisions_total[5m]))
//
//	# Upstream timeouts
//	rate(transcript_retrievals_total{outcome="timeout"}[5m])
//
//	# P95 request latency per route
//	histogram_quantile(0.95, sum by (le, route) (rate(http_request_duration_seconds_bucket[5m])))
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		},
		[]string{"method", "route", "code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: []float64{0.005, 0.05, 0.25, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "route"},
	)
)

// Handler returns the Prometheus exposition handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and latency per chi route pattern.
// Unmatched requests are labelled "unmatched" to keep cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}

		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}
