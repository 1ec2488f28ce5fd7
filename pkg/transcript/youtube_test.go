package transcript

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/transcript-gateway/internal/testutil"
)

func newTestFetcher(t *testing.T, mock *testutil.MockYouTube) *YouTube {
	t.Helper()
	y, err := NewYouTube(WithBaseURL(mock.URL()), WithLanguage("en"), WithUserAgent("transcript-gateway-test"))
	if err != nil {
		t.Fatalf("NewYouTube() error = %v", err)
	}
	return y
}

func TestYouTube_Fetch(t *testing.T) {
	mock := testutil.NewMockYouTube()
	defer mock.Close()

	mock.SetVideo("abc12345678", testutil.MockVideo{
		Title:    "Test Video",
		Language: "en",
		Lines: []testutil.MockLine{
			{Start: 0, Dur: 1.5, Text: "Hello & welcome"},
			{Start: 1.5, Dur: 2.25, Text: "it's a \"test\""},
			{Start: 3.75, Dur: 1, Text: "  "},
			{Start: 4.75, Dur: 1, Text: "bye"},
		},
	})

	y := newTestFetcher(t, mock)
	result, err := y.Fetch(context.Background(), http.DefaultClient, "abc12345678")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if result.VideoID != "abc12345678" {
		t.Errorf("VideoID = %q, want abc12345678", result.VideoID)
	}
	if result.Title != "Test Video" {
		t.Errorf("Title = %q, want Test Video", result.Title)
	}
	if result.Language != "en" {
		t.Errorf("Language = %q, want en", result.Language)
	}

	want := []Segment{
		{Start: 0, Duration: 1500 * time.Millisecond, Text: "Hello & welcome"},
		{Start: 1500 * time.Millisecond, Duration: 2250 * time.Millisecond, Text: `it's a "test"`},
		{Start: 4750 * time.Millisecond, Duration: time.Second, Text: "bye"},
	}
	if result.SegmentCount() != len(want) {
		t.Fatalf("SegmentCount() = %d, want %d", result.SegmentCount(), len(want))
	}
	for i, seg := range result.Segments {
		if seg != want[i] {
			t.Errorf("Segments[%d] = %+v, want %+v", i, seg, want[i])
		}
	}

	if ua := mock.LastUserAgent(); ua != "transcript-gateway-test" {
		t.Errorf("User-Agent = %q, want transcript-gateway-test", ua)
	}
}

func TestYouTube_Fetch_Errors(t *testing.T) {
	mock := testutil.NewMockYouTube()
	defer mock.Close()

	mock.SetVideo("disabled000", testutil.MockVideo{Title: "x", Language: "en", CaptionsDisabled: true})
	mock.SetVideo("notracks000", testutil.MockVideo{Title: "x", Language: "en", NoTracks: true})
	mock.SetVideo("private0000", testutil.MockVideo{PlayabilityStatus: "LOGIN_REQUIRED", Reason: "This video is private"})

	tests := []struct {
		name    string
		videoID string
		wantErr error
	}{
		{name: "captions disabled", videoID: "disabled000", wantErr: ErrTranscriptsDisabled},
		{name: "no tracks", videoID: "notracks000", wantErr: ErrNoTranscript},
		{name: "private video", videoID: "private0000", wantErr: ErrVideoUnavailable},
		{name: "unknown video", videoID: "missing0000", wantErr: ErrVideoUnavailable},
	}

	y := newTestFetcher(t, mock)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := y.Fetch(context.Background(), http.DefaultClient, tt.videoID)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Fetch() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestYouTube_Fetch_TooManyRequests(t *testing.T) {
	mock := testutil.NewMockYouTube()
	defer mock.Close()
	mock.SetStatus(http.StatusTooManyRequests)

	y := newTestFetcher(t, mock)
	_, err := y.Fetch(context.Background(), http.DefaultClient, "abc12345678")
	if !errors.Is(err, ErrTooManyRequests) {
		t.Errorf("Fetch() error = %v, want ErrTooManyRequests", err)
	}
}

func TestYouTube_Fetch_ContextCancelled(t *testing.T) {
	mock := testutil.NewMockYouTube()
	defer mock.Close()
	mock.SetVideo("slow0000000", testutil.MockVideo{Title: "slow", Language: "en", Delay: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	y := newTestFetcher(t, mock)
	_, err := y.Fetch(ctx, http.DefaultClient, "slow0000000")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Fetch() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestNewYouTube_InvalidBaseURL(t *testing.T) {
	if _, err := NewYouTube(WithBaseURL("not-a-url")); err == nil {
		t.Error("NewYouTube() expected error for relative base url")
	}
}

func TestPickTrack(t *testing.T) {
	tracks := []captionTrack{
		{BaseURL: "/a", LanguageCode: "de", Kind: "asr"},
		{BaseURL: "/b", LanguageCode: "fr"},
		{BaseURL: "/c", LanguageCode: "en", Kind: "asr"},
		{BaseURL: "/d", LanguageCode: "en"},
	}

	tests := []struct {
		name string
		lang string
		want string
	}{
		{name: "manual track in language", lang: "en", want: "/d"},
		{name: "language case insensitive", lang: "EN", want: "/d"},
		{name: "falls back to first manual", lang: "es", want: "/b"},
		{name: "asr in language", lang: "de", want: "/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pickTrack(tracks, tt.lang)
			if !ok {
				t.Fatal("pickTrack() found nothing")
			}
			if got.BaseURL != tt.want {
				t.Errorf("pickTrack(%q) = %q, want %q", tt.lang, got.BaseURL, tt.want)
			}
		})
	}

	if _, ok := pickTrack(nil, "en"); ok {
		t.Error("pickTrack(nil) should report no track")
	}
}
