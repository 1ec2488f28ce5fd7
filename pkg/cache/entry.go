package cache

import (
	"time"

	"github.com/Sternrassler/transcript-gateway/pkg/transcript"
)

// Entry is a cached transcript with its lifetime.
type Entry struct {
	Result *transcript.Result `json:"result"`

	// InsertedAt is when the entry was stored.
	InsertedAt time.Time `json:"inserted_at"`

	// ExpiresAt is the first instant the entry must no longer be served.
	ExpiresAt time.Time `json:"expires_at"`
}

func newEntry(result *transcript.Result, now time.Time, ttl time.Duration) *Entry {
	return &Entry{
		Result:     result,
		InsertedAt: now,
		ExpiresAt:  now.Add(ttl),
	}
}

// IsExpired reports whether the entry is stale at now.
func (e *Entry) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// TTL returns the time left until expiration at now.
// Returns 0 if already expired.
func (e *Entry) TTL(now time.Time) time.Duration {
	ttl := e.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
