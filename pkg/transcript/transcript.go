// Package transcript defines the transcript result model and the upstream
// fetch primitive that produces it.
package transcript

import (
	"context"
	"net/http"
	"time"
)

// Segment is one caption line.
type Segment struct {
	// Start is the offset of the line from the start of the video.
	Start time.Duration `json:"start"`

	// Duration is how long the line is displayed.
	Duration time.Duration `json:"duration"`

	Text string `json:"text"`
}

// Result is a fetched transcript. Segments keep upstream order.
type Result struct {
	VideoID  string    `json:"video_id"`
	Title    string    `json:"title"`
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// SegmentCount returns the number of caption lines.
func (r *Result) SegmentCount() int {
	if r == nil {
		return 0
	}
	return len(r.Segments)
}

// Fetcher retrieves the transcript of one video. All network I/O must go
// through the supplied client so that transport policy (proxying) applies.
type Fetcher interface {
	Fetch(ctx context.Context, client *http.Client, videoID string) (*Result, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, client *http.Client, videoID string) (*Result, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, client *http.Client, videoID string) (*Result, error) {
	return f(ctx, client, videoID)
}
