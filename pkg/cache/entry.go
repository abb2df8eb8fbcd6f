package cache

import (
	"time"
)

// Entry is a cached response body.
type Entry struct {
	// Content is the response body
	Content string `json:"content"`

	// Headers are the response headers, names case-folded
	Headers map[string]string `json:"headers"`

	// StoredAt is when the response was cached
	StoredAt time.Time `json:"stored_at"`

	// ExpiresAt is the end of the freshness window
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the entry may no longer satisfy a lookup.
// An entry is usable only while now is strictly before ExpiresAt.
func (e *Entry) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// TTL returns the remaining freshness at now.
// Returns 0 if already expired.
func (e *Entry) TTL(now time.Time) time.Duration {
	ttl := e.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Lifetime returns the full freshness window the entry was stored with.
func (e *Entry) Lifetime() time.Duration {
	return e.ExpiresAt.Sub(e.StoredAt)
}
