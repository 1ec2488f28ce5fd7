package retrieval

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/transcript-gateway/pkg/cache"
	"github.com/Sternrassler/transcript-gateway/pkg/transcript"
	"github.com/Sternrassler/transcript-gateway/pkg/upstream"
)

// countingFetcher returns result after waiting for release (if set).
type countingFetcher struct {
	calls   atomic.Int64
	started chan struct{}
	release chan struct{}
	result  *transcript.Result
	err     error
	panics  bool
}

func (f *countingFetcher) Fetch(ctx context.Context, _ *http.Client, videoID string) (*transcript.Result, error) {
	if f.calls.Add(1) == 1 && f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.panics {
		panic("boom")
	}
	if f.err != nil {
		return nil, f.err
	}
	r := *f.result
	r.VideoID = videoID
	return &r, nil
}

func sampleResult() *transcript.Result {
	return &transcript.Result{
		Title:    "Sample",
		Language: "en",
		Segments: []transcript.Segment{
			{Start: 0, Duration: time.Second, Text: "one"},
			{Start: time.Second, Duration: time.Second, Text: "two"},
		},
	}
}

func newTestOrchestrator(f transcript.Fetcher, cfg Config) (*Orchestrator, *cache.Memory) {
	c := cache.NewMemory()
	return New(c, upstream.NewDispatcher(upstream.ProxyConfig{}), f, cfg, zerolog.Nop()), c
}

func wantClass(t *testing.T, err error, class Class) {
	t.Helper()
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("error = %v (%T), want *Error", err, err)
	}
	if e.Class != class {
		t.Fatalf("Class = %q, want %q (err: %v)", e.Class, class, err)
	}
}

func TestRetrieve_MissThenHit(t *testing.T) {
	f := &countingFetcher{result: sampleResult()}
	o, c := newTestOrchestrator(f, Config{})
	ctx := context.Background()

	first, err := o.Retrieve(ctx, "https://www.youtube.com/watch?v=abc12345678")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if first.Cached {
		t.Error("first Retrieve() Cached = true")
	}
	if first.Key != "abc12345678" || first.Result.VideoID != "abc12345678" {
		t.Errorf("Outcome = %+v, want key abc12345678", first)
	}

	// Another surface form of the same video hits the cache.
	second, err := o.Retrieve(ctx, "https://youtu.be/abc12345678")
	if err != nil {
		t.Fatalf("second Retrieve() error = %v", err)
	}
	if !second.Cached {
		t.Error("second Retrieve() Cached = false")
	}
	if second.Result.SegmentCount() != 2 || second.Result.Segments[1].Text != "two" {
		t.Errorf("cached result = %+v, want identical content", second.Result)
	}

	if n := f.calls.Load(); n != 1 {
		t.Errorf("fetcher called %d times, want 1", n)
	}
	stats, _ := c.Stats(ctx)
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Stats() = %+v, want 1 hit, 1 miss", stats)
	}
}

func TestRetrieve_InvalidLocatorShortCircuits(t *testing.T) {
	f := &countingFetcher{result: sampleResult()}
	o, c := newTestOrchestrator(f, Config{})

	for _, raw := range []string{"", "   ", "not a video", "https://vimeo.com/123"} {
		_, err := o.Retrieve(context.Background(), raw)
		wantClass(t, err, ClassInvalidLocator)
	}

	if n := f.calls.Load(); n != 0 {
		t.Errorf("fetcher called %d times, want 0", n)
	}
	stats, _ := c.Stats(context.Background())
	if stats.Hits+stats.Misses != 0 {
		t.Errorf("cache consulted for invalid input: %+v", stats)
	}
}

func TestRetrieve_SingleFlight(t *testing.T) {
	f := &countingFetcher{
		result:  sampleResult(),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	o, _ := newTestOrchestrator(f, Config{Deadline: 5 * time.Second})
	sharedBefore := testutil.ToFloat64(SharedFlights)

	const callers = 5
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	outcomes := make(chan *Outcome, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := o.Retrieve(context.Background(), "abc12345678")
			if err != nil {
				errs <- err
				return
			}
			outcomes <- out
		}()
	}

	<-f.started
	// Give the other callers time to join the flight.
	time.Sleep(100 * time.Millisecond)
	close(f.release)
	wg.Wait()
	close(errs)
	close(outcomes)

	for err := range errs {
		t.Errorf("Retrieve() error = %v", err)
	}
	for out := range outcomes {
		if out.Cached || out.Result.Title != "Sample" {
			t.Errorf("Outcome = %+v, want fresh Sample", out)
		}
	}
	if n := f.calls.Load(); n != 1 {
		t.Errorf("fetcher called %d times for concurrent misses, want 1", n)
	}
	// Every caller of a coalesced flight, the leader included, is counted.
	if got := testutil.ToFloat64(SharedFlights) - sharedBefore; got != callers {
		t.Errorf("shared flights = %v, want %d", got, callers)
	}
}

func TestRetrieve_Timeout(t *testing.T) {
	f := &countingFetcher{
		result:  sampleResult(),
		release: make(chan struct{}),
	}
	o, c := newTestOrchestrator(f, Config{Deadline: 50 * time.Millisecond, UpstreamTimeout: 5 * time.Second})

	start := time.Now()
	_, err := o.Retrieve(context.Background(), "abc12345678")
	elapsed := time.Since(start)

	wantClass(t, err, ClassTimeout)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("timeout error should wrap context.DeadlineExceeded")
	}
	if elapsed > time.Second {
		t.Errorf("Retrieve() took %v, want close to the 50ms deadline", elapsed)
	}

	// The abandoned fetch completes later and still fills the cache.
	close(f.release)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if s, _ := c.Stats(context.Background()); s.Entries == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("abandoned fetch did not populate the cache")
		}
		time.Sleep(10 * time.Millisecond)
	}

	out, err := o.Retrieve(context.Background(), "abc12345678")
	if err != nil || !out.Cached {
		t.Errorf("Retrieve() after late fill = %+v, %v; want cached", out, err)
	}
}

func TestRetrieve_CallerCancelled(t *testing.T) {
	f := &countingFetcher{result: sampleResult(), release: make(chan struct{})}
	defer close(f.release)
	o, _ := newTestOrchestrator(f, Config{Deadline: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := o.Retrieve(ctx, "abc12345678")
	wantClass(t, err, ClassTimeout)
}

func TestRetrieve_UpstreamErrorsClassified(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{name: "disabled", err: transcript.ErrTranscriptsDisabled, want: ClassTranscriptsDisabled},
		{name: "no transcript", err: transcript.ErrNoTranscript, want: ClassNoTranscript},
		{name: "unavailable", err: transcript.ErrVideoUnavailable, want: ClassResourceUnavailable},
		{name: "transport", err: errors.New("connection refused"), want: ClassUpstreamFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &countingFetcher{err: tt.err}
			o, c := newTestOrchestrator(f, Config{})

			_, err := o.Retrieve(context.Background(), "abc12345678")
			wantClass(t, err, tt.want)

			if s, _ := c.Stats(context.Background()); s.Entries != 0 {
				t.Error("failed fetch must not be cached")
			}
		})
	}
}

func TestRetrieve_EmptyTranscript(t *testing.T) {
	f := &countingFetcher{result: &transcript.Result{Title: "Silent"}}
	o, c := newTestOrchestrator(f, Config{})

	_, err := o.Retrieve(context.Background(), "abc12345678")
	wantClass(t, err, ClassNoTranscript)

	if s, _ := c.Stats(context.Background()); s.Entries != 0 {
		t.Error("empty transcript must not be cached")
	}
}

func TestRetrieve_FetcherPanic(t *testing.T) {
	f := &countingFetcher{panics: true, result: sampleResult()}
	o, _ := newTestOrchestrator(f, Config{})

	_, err := o.Retrieve(context.Background(), "abc12345678")
	wantClass(t, err, ClassUpstreamFailure)
}

func TestRetrieve_CacheExpiryRefetches(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	c := cache.NewMemory(cache.WithClock(clock))
	f := &countingFetcher{result: sampleResult()}
	o := New(c, upstream.NewDispatcher(upstream.ProxyConfig{}), f, Config{CacheTTL: time.Minute}, zerolog.Nop())
	ctx := context.Background()

	o.Retrieve(ctx, "abc12345678")
	mu.Lock()
	now = now.Add(time.Minute)
	mu.Unlock()

	out, err := o.Retrieve(ctx, "abc12345678")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if out.Cached {
		t.Error("Retrieve() served an expired entry")
	}
	if n := f.calls.Load(); n != 2 {
		t.Errorf("fetcher called %d times, want 2", n)
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.Deadline != DefaultDeadline {
		t.Errorf("Deadline = %v, want %v", cfg.Deadline, DefaultDeadline)
	}
	if cfg.UpstreamTimeout != 2*DefaultDeadline {
		t.Errorf("UpstreamTimeout = %v, want %v", cfg.UpstreamTimeout, 2*DefaultDeadline)
	}
	if cfg.CacheTTL != cache.DefaultTTL {
		t.Errorf("CacheTTL = %v, want %v", cfg.CacheTTL, cache.DefaultTTL)
	}
}
