// Package testutil provides testing utilities for the transcript gateway.
package testutil

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockLine is one caption line served by MockYouTube.
type MockLine struct {
	Start float64
	Dur   float64
	Text  string
}

// MockVideo defines how MockYouTube answers for one video id.
type MockVideo struct {
	Title    string
	Language string
	Lines    []MockLine

	// PlayabilityStatus overrides "OK" (e.g. "ERROR", "LOGIN_REQUIRED").
	PlayabilityStatus string
	Reason            string

	// CaptionsDisabled omits the captions block entirely.
	CaptionsDisabled bool

	// NoTracks serves a captions block with no tracks.
	NoTracks bool

	// Delay is applied before the watch page is written.
	Delay time.Duration
}

// MockYouTube is a configurable mock of the YouTube watch page and timed-text endpoints.
type MockYouTube struct {
	server *httptest.Server
	mu     sync.RWMutex
	videos map[string]MockVideo

	// Status forces every response to this status code when non-zero.
	status int

	watchRequests map[string]int
	trackRequests int
	lastUserAgent string
}

// NewMockYouTube creates a new mock YouTube server.
func NewMockYouTube() *MockYouTube {
	m := &MockYouTube{
		videos:        make(map[string]MockVideo),
		watchRequests: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/watch", m.handleWatch)
	mux.HandleFunc("/api/timedtext", m.handleTimedText)
	m.server = httptest.NewServer(mux)

	return m
}

// URL returns the mock server URL.
func (m *MockYouTube) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockYouTube) Close() {
	m.server.Close()
}

// SetVideo registers or replaces a video.
func (m *MockYouTube) SetVideo(id string, v MockVideo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videos[id] = v
}

// SetStatus forces every response to the given HTTP status (0 restores normal behavior).
func (m *MockYouTube) SetStatus(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = code
}

// WatchRequests returns how often the watch page of id was requested.
func (m *MockYouTube) WatchRequests(id string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.watchRequests[id]
}

// TrackRequests returns the number of timed-text requests.
func (m *MockYouTube) TrackRequests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trackRequests
}

// LastUserAgent returns the User-Agent of the most recent request.
func (m *MockYouTube) LastUserAgent() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUserAgent
}

func (m *MockYouTube) handleWatch(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("v")

	m.mu.Lock()
	m.watchRequests[id]++
	m.lastUserAgent = r.UserAgent()
	status := m.status
	video, ok := m.videos[id]
	m.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}

	if video.Delay > 0 {
		select {
		case <-time.After(video.Delay):
		case <-r.Context().Done():
			return
		}
	}

	player := map[string]any{}
	switch {
	case !ok:
		player["playabilityStatus"] = map[string]any{"status": "ERROR", "reason": "Video unavailable"}
	case video.PlayabilityStatus != "":
		player["playabilityStatus"] = map[string]any{"status": video.PlayabilityStatus, "reason": video.Reason}
	default:
		player["playabilityStatus"] = map[string]any{"status": "OK"}
		player["videoDetails"] = map[string]any{"videoId": id, "title": video.Title}
		if !video.CaptionsDisabled {
			tracks := []map[string]any{}
			if !video.NoTracks {
				tracks = append(tracks, map[string]any{
					"baseUrl":      fmt.Sprintf("/api/timedtext?v=%s&lang=%s", id, video.Language),
					"languageCode": video.Language,
				})
			}
			player["captions"] = map[string]any{
				"playerCaptionsTracklistRenderer": map[string]any{"captionTracks": tracks},
			}
		}
	}

	data, _ := json.Marshal(player)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "<html><head><script>var ytInitialPlayerResponse = %s;var meta = {};</script></head><body></body></html>", data)
}

func (m *MockYouTube) handleTimedText(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("v")

	m.mu.Lock()
	m.trackRequests++
	status := m.status
	video, ok := m.videos[id]
	m.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8" ?><transcript>`)
	for _, line := range video.Lines {
		// Caption text is escaped twice, like the real endpoint.
		fmt.Fprintf(&b, `<text start="%.2f" dur="%.2f">%s</text>`,
			line.Start, line.Dur, html.EscapeString(html.EscapeString(line.Text)))
	}
	b.WriteString(`</transcript>`)

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(b.String()))
}

// NewSimpleVideo builds a video with n numbered caption lines.
func NewSimpleVideo(title string, n int) MockVideo {
	lines := make([]MockLine, n)
	for i := range lines {
		lines[i] = MockLine{Start: float64(i) * 2, Dur: 2, Text: fmt.Sprintf("line %d", i+1)}
	}
	return MockVideo{Title: title, Language: "en", Lines: lines}
}
