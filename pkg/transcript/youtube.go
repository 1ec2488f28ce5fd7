package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Upstream failures. Their messages are stable so callers can classify
// failures of any Fetcher by message, not only this one.
var (
	ErrTooManyRequests     = errors.New("youtube is receiving too many requests from this IP and now requires solving a captcha to continue")
	ErrVideoUnavailable    = errors.New("the video is no longer available")
	ErrTranscriptsDisabled = errors.New("transcript is disabled on this video")
	ErrNoTranscript        = errors.New("no transcripts are available for this video")
)

const (
	// DefaultBaseURL is the public YouTube origin.
	DefaultBaseURL = "https://www.youtube.com"

	// DefaultUserAgent mimics a desktop browser; the watch page differs for bots.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

	maxBodyBytes = 8 << 20

	playerResponseMarker = "ytInitialPlayerResponse = "
	captchaMarker        = `class="g-recaptcha"`
)

// YouTube fetches transcripts by reading the watch page player response and
// then the timed-text track it references.
type YouTube struct {
	baseURL   *url.URL
	language  string
	userAgent string
}

// YouTubeOption configures a YouTube fetcher.
type YouTubeOption func(*YouTube) error

// WithBaseURL points the fetcher at another origin (tests, mirrors).
func WithBaseURL(raw string) YouTubeOption {
	return func(y *YouTube) error {
		u, err := url.Parse(strings.TrimRight(raw, "/"))
		if err != nil {
			return fmt.Errorf("parse base url: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("base url %q must be absolute", raw)
		}
		y.baseURL = u
		return nil
	}
}

// WithLanguage sets the preferred caption language code.
func WithLanguage(lang string) YouTubeOption {
	return func(y *YouTube) error {
		y.language = strings.TrimSpace(lang)
		return nil
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) YouTubeOption {
	return func(y *YouTube) error {
		if ua != "" {
			y.userAgent = ua
		}
		return nil
	}
}

// NewYouTube creates a YouTube fetcher.
func NewYouTube(opts ...YouTubeOption) (*YouTube, error) {
	base, _ := url.Parse(DefaultBaseURL)
	y := &YouTube{
		baseURL:   base,
		language:  "en",
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		if err := opt(y); err != nil {
			return nil, err
		}
	}
	return y, nil
}

type playerResponse struct {
	PlayabilityStatus struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	VideoDetails struct {
		Title string `json:"title"`
	} `json:"videoDetails"`
	Captions *struct {
		Renderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
}

type timedText struct {
	Lines []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Body  string `xml:",chardata"`
	} `xml:"text"`
}

// Fetch implements Fetcher.
func (y *YouTube) Fetch(ctx context.Context, client *http.Client, videoID string) (*Result, error) {
	watch := y.baseURL.JoinPath("watch")
	watch.RawQuery = url.Values{"v": []string{videoID}}.Encode()

	page, err := y.get(ctx, client, watch.String())
	if err != nil {
		return nil, fmt.Errorf("watch page: %w", err)
	}
	if bytes.Contains(page, []byte(captchaMarker)) {
		return nil, ErrTooManyRequests
	}

	player, err := parsePlayerResponse(page)
	if err != nil {
		return nil, err
	}
	if status := player.PlayabilityStatus.Status; status != "" && status != "OK" {
		return nil, fmt.Errorf("%w: %s (%s)", ErrVideoUnavailable, status, player.PlayabilityStatus.Reason)
	}
	if player.Captions == nil {
		return nil, ErrTranscriptsDisabled
	}

	track, ok := pickTrack(player.Captions.Renderer.CaptionTracks, y.language)
	if !ok {
		return nil, ErrNoTranscript
	}

	trackURL, err := y.baseURL.Parse(track.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse caption track url: %w", err)
	}
	body, err := y.get(ctx, client, trackURL.String())
	if err != nil {
		return nil, fmt.Errorf("caption track: %w", err)
	}

	segments, err := parseTimedText(body)
	if err != nil {
		return nil, err
	}

	return &Result{
		VideoID:  videoID,
		Title:    player.VideoDetails.Title,
		Language: track.LanguageCode,
		Segments: segments,
	}, nil
}

func (y *YouTube) get(ctx context.Context, client *http.Client, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", y.userAgent)
	if y.language != "" {
		req.Header.Set("Accept-Language", y.language)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrTooManyRequests
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// parsePlayerResponse decodes the JSON object assigned to
// ytInitialPlayerResponse. The decoder stops at the end of the first value,
// so the trailing script is ignored.
func parsePlayerResponse(page []byte) (*playerResponse, error) {
	idx := bytes.Index(page, []byte(playerResponseMarker))
	if idx < 0 {
		return nil, fmt.Errorf("%w: player response not found", ErrVideoUnavailable)
	}

	var pr playerResponse
	dec := json.NewDecoder(bytes.NewReader(page[idx+len(playerResponseMarker):]))
	if err := dec.Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode player response: %w", err)
	}
	return &pr, nil
}

// pickTrack prefers a manual track in lang, then any track in lang, then the
// first manual track, then the first track.
func pickTrack(tracks []captionTrack, lang string) (captionTrack, bool) {
	if len(tracks) == 0 {
		return captionTrack{}, false
	}
	var anyLang, firstManual *captionTrack
	for i := range tracks {
		t := &tracks[i]
		if t.BaseURL == "" {
			continue
		}
		manual := t.Kind != "asr"
		if lang != "" && strings.EqualFold(t.LanguageCode, lang) {
			if manual {
				return *t, true
			}
			if anyLang == nil {
				anyLang = t
			}
		}
		if manual && firstManual == nil {
			firstManual = t
		}
	}
	switch {
	case anyLang != nil:
		return *anyLang, true
	case firstManual != nil:
		return *firstManual, true
	}
	for _, t := range tracks {
		if t.BaseURL != "" {
			return t, true
		}
	}
	return captionTrack{}, false
}

func parseTimedText(body []byte) ([]Segment, error) {
	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("decode timed text: %w", err)
	}

	segments := make([]Segment, 0, len(tt.Lines))
	for _, line := range tt.Lines {
		// Caption bodies arrive escaped twice.
		text := strings.TrimSpace(html.UnescapeString(line.Body))
		if text == "" {
			continue
		}
		segments = append(segments, Segment{
			Start:    parseSeconds(line.Start),
			Duration: parseSeconds(line.Dur),
			Text:     text,
		})
	}
	return segments, nil
}

func parseSeconds(s string) time.Duration {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}
