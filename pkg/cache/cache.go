package cache

import (
	"context"
	"errors"
	"time"

	"github.com/Sternrassler/transcript-gateway/pkg/locator"
	"github.com/Sternrassler/transcript-gateway/pkg/transcript"
)

// DefaultTTL is how long a transcript stays cached when no TTL is configured.
const DefaultTTL = time.Hour

// ErrNilResult is returned by Put when asked to store nothing.
var ErrNilResult = errors.New("cache: result cannot be nil")

// Stats are cumulative counters plus the current entry count.
type Stats struct {
	Entries int   `json:"entryCount"`
	Hits    int64 `json:"hitCount"`
	Misses  int64 `json:"missCount"`
}

// Cache maps video ids to transcripts. Implementations are safe for
// concurrent use.
type Cache interface {
	// Get returns the cached result, or ok=false when absent or expired.
	// Every call counts as exactly one hit or one miss.
	Get(ctx context.Context, key locator.Key) (result *transcript.Result, ok bool, err error)

	// Put stores result under key, replacing any previous entry.
	Put(ctx context.Context, key locator.Key, result *transcript.Result, ttl time.Duration) error

	// Invalidate removes key and reports whether an entry existed.
	Invalidate(ctx context.Context, key locator.Key) (bool, error)

	// Clear removes every entry. Counters are kept.
	Clear(ctx context.Context) error

	Stats(ctx context.Context) (Stats, error)
}

func effectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

var (
	_ Cache = (*Memory)(nil)
	_ Cache = (*Redis)(nil)
)
