// Command transcript-gateway serves YouTube transcripts over HTTP with
// caching, per-client rate limiting and an optional outbound proxy.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/transcript-gateway/internal/config"
	"github.com/Sternrassler/transcript-gateway/pkg/cache"
	"github.com/Sternrassler/transcript-gateway/pkg/logging"
	"github.com/Sternrassler/transcript-gateway/pkg/ratelimit"
	"github.com/Sternrassler/transcript-gateway/pkg/retrieval"
	"github.com/Sternrassler/transcript-gateway/pkg/server"
	"github.com/Sternrassler/transcript-gateway/pkg/transcript"
	"github.com/Sternrassler/transcript-gateway/pkg/upstream"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "optional YAML config file; environment variables take precedence")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "transcript-gateway: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	logger.Info().
		Str("addr", cfg.Addr()).
		Str("backend", a.backend).
		Bool("proxy_enabled", a.proxyEnabled).
		Msg("Starting transcript gateway")

	return serve(ctx, ln, a.handler, cfg.RequestTimeout, logger)
}

// app holds the wired components for one process.
type app struct {
	handler      http.Handler
	backend      string
	proxyEnabled bool
	closers      []func() error
}

// Close releases backend connections.
func (a *app) Close() {
	for _, c := range a.closers {
		_ = c()
	}
}

// newApp wires cache, limiter, dispatcher and orchestrator. Memory-backed
// janitors run until ctx is done.
func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	proxy, err := cfg.Proxy()
	if err != nil {
		return nil, err
	}

	limits := ratelimit.Config{Window: cfg.RateLimitWindow, Max: cfg.RateLimitMax}
	a := &app{}

	var (
		store   cache.Cache
		limiter ratelimit.Limiter
	)

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		a.closers = append(a.closers, rdb.Close)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
		}

		store = cache.NewRedis(rdb, cache.WithRedisLogger(component(logger, "cache")))
		rl, err := ratelimit.NewRedis(rdb, limits)
		if err != nil {
			a.Close()
			return nil, err
		}
		limiter = rl
		a.backend = "redis"
	} else {
		mem := cache.NewMemory(
			cache.WithMaxEntries(cfg.CacheMaxEntries),
			cache.WithLogger(component(logger, "cache")),
		)
		go mem.StartJanitor(ctx, cfg.CacheSweepInterval)
		store = mem

		rl, err := ratelimit.NewMemory(limits, component(logger, "ratelimit"))
		if err != nil {
			return nil, err
		}
		go rl.StartJanitor(ctx)
		limiter = rl
		a.backend = "memory"
	}

	fetcher, err := transcript.NewYouTube(
		transcript.WithBaseURL(cfg.UpstreamBaseURL),
		transcript.WithLanguage(cfg.UpstreamLanguage),
		transcript.WithUserAgent(cfg.UserAgent),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	dispatcher := upstream.NewDispatcher(proxy,
		upstream.WithMaxRPS(cfg.UpstreamMaxRPS),
		upstream.WithLogger(component(logger, "upstream")),
	)

	orch := retrieval.New(store, dispatcher, fetcher, retrieval.Config{
		Deadline:        cfg.RequestTimeout,
		UpstreamTimeout: cfg.UpstreamTimeout,
		CacheTTL:        cfg.CacheTTL,
	}, component(logger, "retrieval"))

	srv := server.New(server.Deps{
		Retriever:    orch,
		Cache:        store,
		Limiter:      limiter,
		KeyFunc:      ratelimit.DefaultKeyFunc(cfg.TrustForwardedFor),
		ProxyEnabled: dispatcher.ProxyEnabled(),
		Logger:       component(logger, "http"),
	})

	a.handler = srv.Handler()
	a.proxyEnabled = dispatcher.ProxyEnabled()
	return a, nil
}

// serve runs the HTTP server on ln until ctx is done, then drains in-flight
// requests.
func serve(ctx context.Context, ln net.Listener, h http.Handler, requestTimeout time.Duration, logger zerolog.Logger) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      requestTimeout + 10*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
