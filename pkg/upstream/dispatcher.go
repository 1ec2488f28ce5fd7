// Package upstream performs outbound transcript fetches, routing them through
// an optional proxy and pacing them to a configured rate.
package upstream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Sternrassler/transcript-gateway/pkg/transcript"
)

// Call is one upstream fetch. It must perform all network I/O through client.
type Call func(ctx context.Context, client *http.Client) (*transcript.Result, error)

// Dispatcher runs Calls with the configured transport policy.
type Dispatcher struct {
	proxy   ProxyConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMaxRPS paces outbound calls to at most rps per second across the
// process. Zero or negative disables pacing.
func WithMaxRPS(rps float64) Option {
	return func(d *Dispatcher) {
		if rps <= 0 {
			d.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a Dispatcher. The http.Client is built once; when the
// proxy is enabled every request, redirects included, goes through it.
func NewDispatcher(proxy ProxyConfig, opts ...Option) *Dispatcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	if proxy.Enabled {
		transport.Proxy = http.ProxyURL(proxy.URL())
	}

	d := &Dispatcher{
		proxy:  proxy,
		client: &http.Client{Transport: transport},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.logger.Info().
		Str("proxy", proxy.Redacted()).
		Bool("paced", d.limiter != nil).
		Msg("Upstream dispatcher configured")

	return d
}

// ProxyEnabled reports whether calls are routed through a proxy.
func (d *Dispatcher) ProxyEnabled() bool {
	return d.proxy.Enabled
}

// Dispatch runs call with the dispatcher's client. Errors are returned as
// produced by call, except that the proxy password is masked.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) (*transcript.Result, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}

	route := "direct"
	if d.proxy.Enabled {
		route = "proxy"
	}

	start := time.Now()
	result, err := call(ctx, d.client)
	UpstreamDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())

	if err != nil {
		UpstreamCalls.WithLabelValues(route, "error").Inc()
		err = d.proxy.scrub(err)
		d.logger.Debug().
			Err(err).
			Str("route", route).
			Dur("duration", time.Since(start)).
			Msg("Upstream call failed")
		return nil, err
	}

	UpstreamCalls.WithLabelValues(route, "success").Inc()
	return result, nil
}

func (d *Dispatcher) wait(ctx context.Context) error {
	if d.limiter == nil {
		return nil
	}
	start := time.Now()
	defer func() { UpstreamPacingWait.Observe(time.Since(start).Seconds()) }()

	if err := d.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// The limiter refuses waits that would outlive the deadline.
		return fmt.Errorf("upstream pacing: %w", context.DeadlineExceeded)
	}
	return nil
}
