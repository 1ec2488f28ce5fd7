package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/transcript-gateway/pkg/locator"
	"github.com/Sternrassler/transcript-gateway/pkg/transcript"
)

// Class is a stable failure category surfaced to clients.
type Class string

const (
	// ClassInvalidLocator represents malformed or missing input.
	ClassInvalidLocator Class = "invalid_locator"

	// ClassRateLimitExceeded represents a client over its request budget.
	// Only the HTTP boundary produces it.
	ClassRateLimitExceeded Class = "rate_limit_exceeded"

	// ClassNoTranscript represents a video without a usable transcript.
	ClassNoTranscript Class = "no_transcript"

	// ClassTranscriptsDisabled represents a video whose owner disabled captions.
	ClassTranscriptsDisabled Class = "transcripts_disabled"

	// ClassResourceUnavailable represents a private, removed or region-locked video.
	ClassResourceUnavailable Class = "resource_unavailable"

	// ClassTimeout represents an upstream fetch that missed the deadline.
	ClassTimeout Class = "timeout"

	// ClassUpstreamFailure represents any other transport or provider error.
	ClassUpstreamFailure Class = "upstream_failure"
)

// Retryable reports whether the same request may succeed later.
func (c Class) Retryable() bool {
	switch c {
	case ClassRateLimitExceeded, ClassTimeout, ClassUpstreamFailure:
		return true
	default:
		// Permanent for this input or this video.
		return false
	}
}

var classMessages = map[Class]string{
	ClassInvalidLocator:      "Invalid YouTube URL or video ID",
	ClassRateLimitExceeded:   "Too many requests, please try again later.",
	ClassNoTranscript:        "No transcript available for this video",
	ClassTranscriptsDisabled: "Transcripts are disabled for this video",
	ClassResourceUnavailable: "Video is unavailable",
	ClassTimeout:             "Request timeout - transcript fetch took too long",
	ClassUpstreamFailure:     "Failed to fetch transcript",
}

// Message returns the client-facing description of c.
func (c Class) Message() string {
	if m, ok := classMessages[c]; ok {
		return m
	}
	return classMessages[ClassUpstreamFailure]
}

// Error is a classified retrieval failure.
type Error struct {
	Class Class

	// Message is safe to show to clients.
	Message string

	// Err is the underlying failure, kept for logs.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Class, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(class Class, err error) *Error {
	return &Error{Class: class, Message: class.Message(), Err: err}
}

// sentinels are checked with errors.Is before falling back to messages.
var sentinels = []struct {
	err   error
	class Class
}{
	{locator.ErrInvalid, ClassInvalidLocator},
	{context.DeadlineExceeded, ClassTimeout},
	{context.Canceled, ClassTimeout},
	{transcript.ErrTranscriptsDisabled, ClassTranscriptsDisabled},
	{transcript.ErrNoTranscript, ClassNoTranscript},
	{transcript.ErrVideoUnavailable, ClassResourceUnavailable},
	{transcript.ErrTooManyRequests, ClassUpstreamFailure},
}

// signatures match lowercase error messages from any Fetcher. First match
// wins.
var signatures = []struct {
	fragment string
	class    Class
}{
	{"invalid video locator", ClassInvalidLocator},
	{"too many requests", ClassUpstreamFailure},
	{"captcha", ClassUpstreamFailure},
	{"transcript is disabled", ClassTranscriptsDisabled},
	{"transcripts disabled", ClassTranscriptsDisabled},
	{"no transcripts are available", ClassNoTranscript},
	{"no transcript", ClassNoTranscript},
	{"transcript not available", ClassNoTranscript},
	{"no longer available", ClassResourceUnavailable},
	{"video unavailable", ClassResourceUnavailable},
	{"private video", ClassResourceUnavailable},
	{"deadline exceeded", ClassTimeout},
	{"timed out", ClassTimeout},
	{"timeout", ClassTimeout},
}

// Classify maps any error to an *Error. Already classified errors are
// returned as is; unknown errors become ClassUpstreamFailure.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return newError(s.class, err)
		}
	}

	msg := strings.ToLower(err.Error())
	for _, s := range signatures {
		if strings.Contains(msg, s.fragment) {
			return newError(s.class, err)
		}
	}

	return newError(ClassUpstreamFailure, err)
}
