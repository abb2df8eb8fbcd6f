package cache

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// ResponseCache maps full-locator keys to cached response bodies and
// applies the freshness policy on store.
type ResponseCache struct {
	store            Store
	defaultFreshness time.Duration
	now              func() time.Time
	logger           zerolog.Logger
}

// NewResponseCache creates a cache over store. A non-positive
// defaultFreshness selects DefaultFreshness.
func NewResponseCache(store Store, defaultFreshness time.Duration, logger zerolog.Logger) *ResponseCache {
	if store == nil {
		panic("cache store cannot be nil")
	}
	if defaultFreshness <= 0 {
		defaultFreshness = DefaultFreshness
	}
	return &ResponseCache{
		store:            store,
		defaultFreshness: defaultFreshness,
		now:              time.Now,
		logger:           logger.With().Str("component", "cache").Str("layer", store.Layer()).Logger(),
	}
}

// SetClock replaces the clock used by Lookup (for testing).
func (c *ResponseCache) SetClock(now func() time.Time) {
	c.now = now
}

// Now returns the current time on the cache clock.
func (c *ResponseCache) Now() time.Time {
	return c.now()
}

// Lookup returns the fresh entry for key. Expired entries are purged and
// reported as a miss. Backend errors are logged and treated as a miss.
func (c *ResponseCache) Lookup(ctx context.Context, key string) (*Entry, bool) {
	entry, err := c.store.Get(ctx, key, c.now())
	if err != nil {
		CacheMisses.Inc()
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("key", key).Msg("Cache get error")
		} else {
			c.logger.Debug().Str("key", key).Msg("Cache miss")
		}
		return nil, false
	}

	CacheHits.WithLabelValues(c.store.Layer()).Inc()
	c.logger.Debug().
		Str("key", key).
		Dur("ttl", entry.TTL(c.now())).
		Msg("Cache hit")
	return entry, true
}

// Store caches content under key when the headers permit it. It reports
// whether an entry was written.
func (c *ResponseCache) Store(ctx context.Context, key, content string, headers map[string]string, now time.Time) bool {
	entry, ok := NewEntry(content, headers, now, c.defaultFreshness)
	if !ok {
		CacheStores.WithLabelValues("refused").Inc()
		c.logger.Debug().
			Str("key", key).
			Str("cache_control", headers["cache-control"]).
			Msg("Response not cacheable")
		return false
	}

	if err := c.store.Set(ctx, key, entry); err != nil {
		CacheStores.WithLabelValues("error").Inc()
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to cache response")
		return false
	}

	CacheStores.WithLabelValues("stored").Inc()
	c.logger.Debug().
		Str("key", key).
		Dur("ttl", entry.Lifetime()).
		Msg("Cached response")
	return true
}

// Invalidate removes any entry for key.
func (c *ResponseCache) Invalidate(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}
