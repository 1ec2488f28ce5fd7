// Package locator turns user-supplied video locators (full URLs in the
// accepted shapes, or a bare video id) into a canonical cache key.
package locator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MaxLocatorLength bounds the accepted locator length in bytes.
const MaxLocatorLength = 2048

// ErrInvalid is wrapped by every error Normalize returns.
var ErrInvalid = errors.New("invalid video locator")

// Key is the canonical identifier of a video: its 11-character id.
type Key string

// String implements fmt.Stringer.
func (k Key) String() string {
	return string(k)
}

// pattern is one accepted surface syntax. The first capture group of expr
// must be the video id.
type pattern struct {
	name string
	expr *regexp.Regexp
}

const idGroup = `([A-Za-z0-9_-]{11})`

// patterns is tried top to bottom; the first match wins.
var patterns = []pattern{
	{"watch", regexp.MustCompile(`^(?:https?://)?(?:(?:www|m|music)\.)?youtube\.com/watch/?\?(?:[^#]*&)?v=` + idGroup + `(?:[&#].*)?$`)},
	{"short", regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtu\.be/` + idGroup + `(?:[/?&#].*)?$`)},
	{"embed", regexp.MustCompile(`^(?:https?://)?(?:(?:www|m)\.)?youtube(?:-nocookie)?\.com/(?:embed|v|shorts|live)/` + idGroup + `(?:[/?&#].*)?$`)},
	{"bare", regexp.MustCompile(`^` + idGroup + `$`)},
}

// Patterns returns the names of the accepted syntaxes in match order.
func Patterns() []string {
	names := make([]string, len(patterns))
	for i, p := range patterns {
		names[i] = p.name
	}
	return names
}

// Normalize derives the canonical Key for a locator.
//
// Example:
//
//	https://www.youtube.com/watch?v=dQw4w9WgXcQ -> dQw4w9WgXcQ
//	https://youtu.be/dQw4w9WgXcQ                -> dQw4w9WgXcQ
//	dQw4w9WgXcQ                                 -> dQw4w9WgXcQ
func Normalize(s string) (Key, error) {
	if len(s) > MaxLocatorLength {
		return "", fmt.Errorf("%w: longer than %d bytes", ErrInvalid, MaxLocatorLength)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalid)
	}

	for _, p := range patterns {
		if m := p.expr.FindStringSubmatch(s); m != nil {
			return Key(m[1]), nil
		}
	}
	return "", fmt.Errorf("%w: unrecognized format %q", ErrInvalid, truncate(s, 64))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
