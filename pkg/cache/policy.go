package cache

import (
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultFreshness is the freshness window used when no max-age
	// directive overrides it
	DefaultFreshness = 3600 * time.Second
)

// unsupportedDirectives are Cache-Control directives whose semantics the
// cache does not implement. A response carrying any of them is not stored.
var unsupportedDirectives = map[string]bool{
	"no-store":               true,
	"private":                true,
	"no-cache":               true,
	"must-revalidate":        true,
	"proxy-revalidate":       true,
	"s-maxage":               true,
	"public":                 true,
	"immutable":              true,
	"stale-while-revalidate": true,
	"stale-if-error":         true,
}

// Freshness evaluates a Cache-Control header value. It returns the
// freshness window and whether the response may be cached at all.
//
// The window starts at def and is replaced by max-age when its value is a
// non-negative integer; malformed max-age values are ignored.
func Freshness(cacheControl string, def time.Duration) (time.Duration, bool) {
	freshness := def

	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.ToLower(strings.TrimSpace(directive))
		if directive == "" {
			continue
		}

		name, value, _ := strings.Cut(directive, "=")
		name = strings.TrimSpace(name)
		if unsupportedDirectives[name] {
			return 0, false
		}

		if name == "max-age" {
			seconds, err := strconv.Atoi(strings.Trim(strings.TrimSpace(value), `"`))
			if err == nil && seconds >= 0 {
				freshness = time.Duration(seconds) * time.Second
			}
		}
	}

	return freshness, true
}

// NewEntry builds an entry stored at now whose freshness is derived from
// the headers. The boolean is false when the response must not be cached
// or its freshness window is empty.
func NewEntry(content string, headers map[string]string, now time.Time, def time.Duration) (*Entry, bool) {
	freshness, cacheable := Freshness(headers["cache-control"], def)
	if !cacheable || freshness <= 0 {
		return nil, false
	}

	copied := make(map[string]string, len(headers))
	for name, value := range headers {
		copied[name] = value
	}

	return &Entry{
		Content:   content,
		Headers:   copied,
		StoredAt:  now,
		ExpiresAt: now.Add(freshness),
	}, true
}
