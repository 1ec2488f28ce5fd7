package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// RejectMessage is the body error text of a 429 response.
const RejectMessage = "Too many requests, please try again later."

// KeyFunc derives the client address a request is counted against.
type KeyFunc func(r *http.Request) string

// DefaultKeyFunc uses the RemoteAddr host. When trustForwardedFor is set, the
// first X-Forwarded-For hop wins; only enable that behind a proxy that
// overwrites the header.
func DefaultKeyFunc(trustForwardedFor bool) KeyFunc {
	return func(r *http.Request) string {
		if trustForwardedFor {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// Options configures Middleware.
type Options struct {
	Limiter Limiter
	KeyFn   KeyFunc
	Logger  zerolog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Middleware rejects requests over the limit with 429 before any handler
// runs. If the limiter itself fails the request is let through.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(false)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := opts.Now()
			addr := opts.KeyFn(r)

			dec, err := opts.Limiter.Admit(r.Context(), addr, now)
			if err != nil {
				Decisions.WithLabelValues("error").Inc()
				opts.Logger.Warn().
					Err(err).
					Str("client", addr).
					Msg("Rate limiter unavailable, admitting request")
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(dec.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(dec.ResetAt.Unix(), 10))

			if !dec.Allowed {
				Decisions.WithLabelValues("rejected").Inc()
				opts.Logger.Debug().
					Str("client", addr).
					Str("path", r.URL.Path).
					Msg("Rate limit exceeded")

				h.Set("Retry-After", strconv.Itoa(dec.RetryAfter(now)))
				h.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": RejectMessage})
				return
			}

			Decisions.WithLabelValues("allowed").Inc()
			next.ServeHTTP(w, r)
		})
	}
}
