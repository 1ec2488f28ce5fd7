package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/transcript-gateway/pkg/cache"
	"github.com/Sternrassler/transcript-gateway/pkg/locator"
	"github.com/Sternrassler/transcript-gateway/pkg/retrieval"
	"github.com/Sternrassler/transcript-gateway/pkg/transcript"
)

const usageHint = "GET /transcript?videoUrl=<YouTube URL or video ID>"

var availableEndpoints = []string{
	"GET /health",
	usageHint,
	"GET /cache/stats",
	"DELETE /cache/:videoId",
	"DELETE /cache",
	"GET /metrics",
}

type healthResponse struct {
	Status       string      `json:"status"`
	Timestamp    string      `json:"timestamp"`
	ProxyEnabled bool        `json:"proxyEnabled"`
	Cache        cache.Stats `json:"cache"`
}

type segmentResponse struct {
	Text     string  `json:"text"`
	Offset   float64 `json:"offset"`
	Duration float64 `json:"duration"`
}

type transcriptResponse struct {
	Title        string            `json:"title"`
	VideoID      string            `json:"videoId"`
	Transcript   []segmentResponse `json:"transcript"`
	SegmentCount int               `json:"segmentCount"`
	Language     string            `json:"language"`
	Cached       bool              `json:"cached"`
}

type cacheStatsResponse struct {
	Stats cache.Stats `json:"stats"`
	Keys  int         `json:"keys"`
}

type mutationResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cache.Stats(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Cache stats unavailable")
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":       "unhealthy",
			"timestamp":    s.timestamp(),
			"proxyEnabled": s.proxy,
			"error":        "cache unavailable",
		})
		return
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:       "healthy",
		Timestamp:    s.timestamp(),
		ProxyEnabled: s.proxy,
		Cache:        stats,
	})
}

func (s *Server) transcript(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("videoUrl")
	if strings.TrimSpace(raw) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "Missing required parameter: videoUrl",
			"usage": usageHint,
		})
		return
	}

	out, err := s.retriever.Retrieve(r.Context(), raw)
	if err != nil {
		rerr := retrieval.Classify(err)
		status := statusFor(rerr.Class)

		event := zerolog.Ctx(r.Context()).Warn()
		if rerr.Class == retrieval.ClassUpstreamFailure {
			event = zerolog.Ctx(r.Context()).Error()
		}
		event.Err(rerr.Err).Str("class", string(rerr.Class)).Msg("Transcript retrieval failed")

		writeError(w, status, rerr.Message)
		return
	}

	writeJSON(w, http.StatusOK, newTranscriptResponse(out))
}

func newTranscriptResponse(out *retrieval.Outcome) transcriptResponse {
	res := out.Result
	segments := make([]segmentResponse, len(res.Segments))
	for i, seg := range res.Segments {
		segments[i] = newSegmentResponse(seg)
	}
	return transcriptResponse{
		Title:        res.Title,
		VideoID:      out.Key.String(),
		Transcript:   segments,
		SegmentCount: res.SegmentCount(),
		Language:     res.Language,
		Cached:       out.Cached,
	}
}

func newSegmentResponse(seg transcript.Segment) segmentResponse {
	return segmentResponse{
		Text:     seg.Text,
		Offset:   seg.Start.Seconds(),
		Duration: seg.Duration.Seconds(),
	}
}

// statusFor maps a failure class to an HTTP status. Classified upstream
// reasons other than timeout share 500.
func statusFor(class retrieval.Class) int {
	switch class {
	case retrieval.ClassInvalidLocator:
		return http.StatusBadRequest
	case retrieval.ClassRateLimitExceeded:
		return http.StatusTooManyRequests
	case retrieval.ClassTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) cacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cache.Stats(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Cache stats unavailable")
		writeError(w, http.StatusInternalServerError, "Failed to read cache stats")
		return
	}
	writeJSON(w, http.StatusOK, cacheStatsResponse{Stats: stats, Keys: stats.Entries})
}

// invalidate deletes the exact key given; it is not normalized.
func (s *Server) invalidate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "videoId")

	existed, err := s.cache.Invalidate(r.Context(), locator.Key(id))
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("video_id", id).Msg("Cache invalidation failed")
		writeError(w, http.StatusInternalServerError, "Failed to delete cache entry")
		return
	}

	if !existed {
		writeJSON(w, http.StatusOK, mutationResponse{
			Success: false,
			Message: fmt.Sprintf("No cache entry found for video %s", id),
		})
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{
		Success: true,
		Message: fmt.Sprintf("Cache entry for video %s deleted", id),
	})
}

func (s *Server) clear(w http.ResponseWriter, r *http.Request) {
	if err := s.cache.Clear(r.Context()); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Cache clear failed")
		writeError(w, http.StatusInternalServerError, "Failed to clear cache")
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{Success: true, Message: "Cache cleared"})
}

func (s *Server) notFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":              "Endpoint not found",
		"availableEndpoints": availableEndpoints,
	})
}

func (s *Server) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}
