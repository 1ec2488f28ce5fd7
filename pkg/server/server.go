// Package server exposes the transcript gateway over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/transcript-gateway/pkg/cache"
	"github.com/Sternrassler/transcript-gateway/pkg/metrics"
	"github.com/Sternrassler/transcript-gateway/pkg/ratelimit"
	"github.com/Sternrassler/transcript-gateway/pkg/retrieval"
)

// Retriever answers transcript requests. *retrieval.Orchestrator implements it.
type Retriever interface {
	Retrieve(ctx context.Context, raw string) (*retrieval.Outcome, error)
}

// Deps are the collaborators a Server routes to.
type Deps struct {
	Retriever Retriever
	Cache     cache.Cache
	Limiter   ratelimit.Limiter

	// KeyFunc picks the rate limit key. Defaults to the remote host.
	KeyFunc ratelimit.KeyFunc

	// ProxyEnabled is reported by /health.
	ProxyEnabled bool

	Logger zerolog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Server wires HTTP handlers to the retrieval pipeline.
type Server struct {
	router    chi.Router
	retriever Retriever
	cache     cache.Cache
	proxy     bool
	logger    zerolog.Logger
	now       func() time.Time
}

// New constructs a Server with middleware and routes.
func New(deps Deps) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.KeyFunc == nil {
		deps.KeyFunc = ratelimit.DefaultKeyFunc(false)
	}

	s := &Server{
		retriever: deps.Retriever,
		cache:     deps.Cache,
		proxy:     deps.ProxyEnabled,
		logger:    deps.Logger,
		now:       deps.Now,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(deps.Logger))
	r.Use(recoverMiddleware)
	r.Use(metrics.Middleware)
	// Admission runs before routing, so unknown routes are limited too.
	r.Use(ratelimit.Middleware(ratelimit.Options{
		Limiter: deps.Limiter,
		KeyFn:   deps.KeyFunc,
		Logger:  deps.Logger,
		Now:     deps.Now,
	}))

	r.Get("/health", s.health)
	r.Get("/transcript", s.transcript)
	r.Get("/cache/stats", s.cacheStats)
	r.Delete("/cache/{videoId}", s.invalidate)
	r.Delete("/cache", s.clear)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.NotFound(s.notFound)
	r.MethodNotAllowed(s.notFound)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}
