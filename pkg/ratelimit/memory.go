package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Memory is a Limiter for a single process. One mutex guards all windows so
// the read-modify-write of a window is atomic.
type Memory struct {
	cfg Config

	mu      sync.Mutex
	windows map[string]*Window

	logger zerolog.Logger
}

// NewMemory creates an in-process limiter. cfg must be valid.
func NewMemory(cfg Config, logger zerolog.Logger) (*Memory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Memory{
		cfg:     cfg,
		windows: make(map[string]*Window),
		logger:  logger,
	}, nil
}

// Admit implements Limiter.
func (m *Memory) Admit(_ context.Context, addr string, now time.Time) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[addr]
	if !ok || w.expired(now, m.cfg.Window) {
		w = &Window{Start: now}
		m.windows[addr] = w
	}

	dec := Decision{
		Limit:   m.cfg.Max,
		ResetAt: w.Start.Add(m.cfg.Window),
	}
	if w.Count < m.cfg.Max {
		w.Count++
		dec.Allowed = true
	}
	dec.Remaining = m.cfg.Max - w.Count
	return dec, nil
}

// Len returns the number of tracked windows.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

// Sweep drops windows that have expired at now. An expired window behaves
// exactly like a missing one, so this never changes a decision.
func (m *Memory) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for addr, w := range m.windows {
		if w.expired(now, m.cfg.Window) {
			delete(m.windows, addr)
			removed++
		}
	}
	ActiveWindows.Set(float64(len(m.windows)))
	return removed
}

// StartJanitor sweeps expired windows once per window length until ctx is
// done. It blocks; run it in its own goroutine.
func (m *Memory) StartJanitor(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := m.Sweep(now); n > 0 {
				m.logger.Debug().Int("removed", n).Msg("Swept idle rate limit windows")
			}
		}
	}
}
