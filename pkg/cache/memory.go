package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/transcript-gateway/pkg/locator"
	"github.com/Sternrassler/transcript-gateway/pkg/transcript"
)

// Memory is an in-process Cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[locator.Key]*Entry

	hits   atomic.Int64
	misses atomic.Int64

	maxEntries int
	now        func() time.Time
	logger     zerolog.Logger
}

// MemoryOption configures a Memory cache.
type MemoryOption func(*Memory)

// WithMaxEntries bounds the cache size. When full, the oldest entry is
// evicted to make room. Zero means unbounded.
func WithMaxEntries(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.maxEntries = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// WithLogger sets the logger used for sweep and eviction events.
func WithLogger(logger zerolog.Logger) MemoryOption {
	return func(m *Memory) {
		m.logger = logger
	}
}

// NewMemory creates an empty in-memory cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[locator.Key]*Entry),
		now:     time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get implements Cache.
func (m *Memory) Get(_ context.Context, key locator.Key) (*transcript.Result, bool, error) {
	now := m.now()

	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if ok && !e.IsExpired(now) {
		m.hits.Add(1)
		CacheHits.WithLabelValues(backendMemory).Inc()
		return e.Result, true, nil
	}

	if ok {
		m.mu.Lock()
		// Another writer may have replaced it meanwhile.
		if cur, still := m.entries[key]; still && cur.IsExpired(now) {
			delete(m.entries, key)
			CacheEvictions.WithLabelValues("expired").Inc()
			CacheEntries.WithLabelValues(backendMemory).Set(float64(len(m.entries)))
		}
		m.mu.Unlock()
	}

	m.misses.Add(1)
	CacheMisses.WithLabelValues(backendMemory).Inc()
	return nil, false, nil
}

// Put implements Cache.
func (m *Memory) Put(_ context.Context, key locator.Key, result *transcript.Result, ttl time.Duration) error {
	if result == nil {
		return ErrNilResult
	}
	e := newEntry(result, m.now(), effectiveTTL(ttl))

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && m.maxEntries > 0 && len(m.entries) >= m.maxEntries {
		m.evictOldestLocked()
	}
	m.entries[key] = e
	CacheEntries.WithLabelValues(backendMemory).Set(float64(len(m.entries)))
	return nil
}

func (m *Memory) evictOldestLocked() {
	var (
		oldestKey locator.Key
		oldest    time.Time
		found     bool
	)
	for k, e := range m.entries {
		if !found || e.InsertedAt.Before(oldest) {
			oldestKey, oldest, found = k, e.InsertedAt, true
		}
	}
	if found {
		delete(m.entries, oldestKey)
		CacheEvictions.WithLabelValues("capacity").Inc()
		m.logger.Debug().Str("video_id", oldestKey.String()).Msg("Evicted oldest cache entry")
	}
}

// Invalidate implements Cache.
func (m *Memory) Invalidate(_ context.Context, key locator.Key) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.entries[key]
	delete(m.entries, key)
	CacheEntries.WithLabelValues(backendMemory).Set(float64(len(m.entries)))
	return ok, nil
}

// Clear implements Cache.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	m.entries = make(map[locator.Key]*Entry)
	m.mu.Unlock()

	CacheEntries.WithLabelValues(backendMemory).Set(0)
	return nil
}

// Stats implements Cache. Entries may include expired entries that have not
// been swept yet.
func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	n := len(m.entries)
	m.mu.RUnlock()

	return Stats{
		Entries: n,
		Hits:    m.hits.Load(),
		Misses:  m.misses.Load(),
	}, nil
}

// Sweep removes expired entries and returns how many were dropped.
func (m *Memory) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, e := range m.entries {
		if e.IsExpired(now) {
			delete(m.entries, k)
			removed++
		}
	}
	if removed > 0 {
		CacheEvictions.WithLabelValues("expired").Add(float64(removed))
		CacheEntries.WithLabelValues(backendMemory).Set(float64(len(m.entries)))
	}
	return removed
}

// StartJanitor sweeps expired entries every interval until ctx is done.
// It blocks; run it in its own goroutine.
func (m *Memory) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug().Int("removed", n).Msg("Swept expired cache entries")
			}
		}
	}
}
