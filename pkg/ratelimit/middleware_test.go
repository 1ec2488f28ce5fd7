package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDefaultKeyFunc(t *testing.T) {
	tests := []struct {
		name       string
		trustXFF   bool
		remoteAddr string
		xff        string
		want       string
	}{
		{name: "remote host", remoteAddr: "10.0.0.9:5555", want: "10.0.0.9"},
		{name: "ipv6 remote host", remoteAddr: "[::1]:5555", want: "::1"},
		{name: "xff ignored when untrusted", remoteAddr: "10.0.0.9:5555", xff: "1.2.3.4", want: "10.0.0.9"},
		{name: "first xff hop when trusted", trustXFF: true, remoteAddr: "10.0.0.9:5555", xff: "1.2.3.4, 5.6.7.8", want: "1.2.3.4"},
		{name: "empty xff falls back", trustXFF: true, remoteAddr: "10.0.0.9:5555", xff: " ,5.6.7.8", want: "10.0.0.9"},
		{name: "remote addr without port", remoteAddr: "10.0.0.9", want: "10.0.0.9"},
		{name: "no address", remoteAddr: "", want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := DefaultKeyFunc(tt.trustXFF)(r); got != tt.want {
				t.Errorf("key = %q, want %q", got, tt.want)
			}
		})
	}
}

func newTestHandler(t *testing.T, max int, now func() time.Time) (http.Handler, *int) {
	t.Helper()
	m := newTestMemory(t, time.Minute, max)
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})
	return Middleware(Options{Limiter: m, Logger: zerolog.Nop(), Now: now})(next), &calls
}

func TestMiddleware_AdmitsThenRejects(t *testing.T) {
	h, calls := newTestHandler(t, 2, func() time.Time { return t0 })

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transcript", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "2" {
			t.Errorf("X-RateLimit-Limit = %q, want 2", got)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anything", nil))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if *calls != 2 {
		t.Errorf("next handler called %d times, want 2", *calls)
	}
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", got)
	}
	if got := rec.Header().Get("X-RateLimit-Reset"); got == "" {
		t.Error("X-RateLimit-Reset missing")
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != RejectMessage {
		t.Errorf("error = %q, want %q", body["error"], RejectMessage)
	}
}

type failingLimiter struct{}

func (failingLimiter) Admit(context.Context, string, time.Time) (Decision, error) {
	return Decision{}, errors.New("redis: connection refused")
}

func TestMiddleware_FailsOpen(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	})
	h := Middleware(Options{Limiter: failingLimiter{}, Logger: zerolog.Nop()})(next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if !called || rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, called = %v; want request admitted", rec.Code, called)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "" {
		t.Error("rate limit headers set without a decision")
	}
}
