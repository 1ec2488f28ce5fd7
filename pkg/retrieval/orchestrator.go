// Package retrieval answers transcript requests: it normalizes the locator,
// serves from the cache when it can, and otherwise runs one deadline-bounded
// upstream fetch per video, however many callers are waiting for it.
package retrieval

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Sternrassler/transcript-gateway/pkg/cache"
	"github.com/Sternrassler/transcript-gateway/pkg/locator"
	"github.com/Sternrassler/transcript-gateway/pkg/transcript"
	"github.com/Sternrassler/transcript-gateway/pkg/upstream"
)

const (
	// DefaultDeadline bounds how long a caller waits for an upstream fetch.
	DefaultDeadline = 30 * time.Second

	cacheWriteTimeout = 5 * time.Second
)

// Dispatcher runs an upstream call. *upstream.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, call upstream.Call) (*transcript.Result, error)
}

// Config tunes an Orchestrator. Zero values select defaults.
type Config struct {
	// Deadline is how long Retrieve waits for the upstream fetch.
	Deadline time.Duration

	// UpstreamTimeout bounds the fetch itself, which keeps running after the
	// caller gave up. Defaults to twice Deadline.
	UpstreamTimeout time.Duration

	// CacheTTL is the lifetime of stored results. Defaults to cache.DefaultTTL.
	CacheTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.Deadline <= 0 {
		c.Deadline = DefaultDeadline
	}
	if c.UpstreamTimeout <= 0 {
		c.UpstreamTimeout = 2 * c.Deadline
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = cache.DefaultTTL
	}
	return c
}

// Outcome is a successful retrieval.
type Outcome struct {
	Key    locator.Key
	Result *transcript.Result

	// Cached is true when the result came from the cache.
	Cached bool
}

// Orchestrator composes the normalizer, cache and dispatcher.
type Orchestrator struct {
	cache      cache.Cache
	dispatcher Dispatcher
	fetcher    transcript.Fetcher
	cfg        Config
	logger     zerolog.Logger

	flights singleflight.Group
}

// New creates an Orchestrator.
func New(c cache.Cache, d Dispatcher, f transcript.Fetcher, cfg Config, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cache:      c,
		dispatcher: d,
		fetcher:    f,
		cfg:        cfg.withDefaults(),
		logger:     logger,
	}
}

// Retrieve returns the transcript for raw, a URL or bare video id.
// Every error it returns is an *Error.
func (o *Orchestrator) Retrieve(ctx context.Context, raw string) (*Outcome, error) {
	start := time.Now()

	out, err := o.retrieve(ctx, raw)

	label := "upstream"
	switch {
	case err != nil:
		label = string(err.Class)
	case out.Cached:
		label = "cache"
	}
	Outcomes.WithLabelValues(label).Inc()
	RetrievalDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, err
	}
	return out, nil
}

func (o *Orchestrator) retrieve(ctx context.Context, raw string) (*Outcome, *Error) {
	key, err := locator.Normalize(raw)
	if err != nil {
		return nil, Classify(err)
	}

	result, ok, err := o.cache.Get(ctx, key)
	if err != nil {
		// A broken cache degrades to always fetching.
		o.logger.Warn().Err(err).Str("video_id", key.String()).Msg("Cache lookup failed")
	} else if ok {
		return &Outcome{Key: key, Result: result, Cached: true}, nil
	}

	flight := o.flights.DoChan(key.String(), func() (interface{}, error) {
		return o.fetch(key)
	})

	timer := time.NewTimer(o.cfg.Deadline)
	defer timer.Stop()

	select {
	case r := <-flight:
		if r.Shared {
			SharedFlights.Inc()
		}
		if r.Err != nil {
			classified := Classify(r.Err)
			o.logger.Debug().
				Err(r.Err).
				Str("video_id", key.String()).
				Str("class", string(classified.Class)).
				Msg("Upstream fetch failed")
			return nil, classified
		}
		return &Outcome{Key: key, Result: r.Val.(*transcript.Result)}, nil

	case <-timer.C:
		AbandonedFlights.Inc()
		o.logger.Warn().
			Str("video_id", key.String()).
			Dur("deadline", o.cfg.Deadline).
			Msg("Upstream fetch exceeded deadline")
		return nil, newError(ClassTimeout,
			fmt.Errorf("no result within %s: %w", o.cfg.Deadline, context.DeadlineExceeded))

	case <-ctx.Done():
		AbandonedFlights.Inc()
		return nil, Classify(ctx.Err())
	}
}

// fetch runs detached from any caller so that an abandoned fetch can still
// fill the cache. A panic inside the fetcher becomes an error.
func (o *Orchestrator) fetch(key locator.Key) (result *transcript.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().
				Interface("panic", r).
				Str("video_id", key.String()).
				Msg("Upstream fetch panicked")
			result, err = nil, fmt.Errorf("upstream fetch panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.UpstreamTimeout)
	defer cancel()

	result, err = o.dispatcher.Dispatch(ctx, func(ctx context.Context, client *http.Client) (*transcript.Result, error) {
		return o.fetcher.Fetch(ctx, client, key.String())
	})
	if err != nil {
		return nil, err
	}
	if result.SegmentCount() == 0 {
		return nil, fmt.Errorf("%w: upstream returned no segments", transcript.ErrNoTranscript)
	}

	putCtx, putCancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
	defer putCancel()
	// Last write wins; a concurrent fetch after expiry may overwrite this.
	if err := o.cache.Put(putCtx, key, result, o.cfg.CacheTTL); err != nil {
		o.logger.Warn().Err(err).Str("video_id", key.String()).Msg("Failed to cache transcript")
	}

	o.logger.Debug().
		Str("video_id", key.String()).
		Int("segments", result.SegmentCount()).
		Msg("Fetched transcript")
	return result, nil
}
