// Package cache provides the response-content cache of the fetch engine.
//
// Entries are keyed by the full locator (scheme, host, port and path) and
// live until their freshness window runs out. Expired entries are purged
// lazily when a lookup finds them; nothing sweeps the cache in the
// background.
//
// # Freshness
//
// Only 200 responses are offered to the cache. The freshness window
// defaults to DefaultFreshness (one hour) and can be overridden by a
// Cache-Control max-age directive. Responses carrying no-store, or any
// directive whose semantics the cache does not implement (private,
// no-cache, must-revalidate, proxy-revalidate, s-maxage, public,
// immutable, stale-while-revalidate, stale-if-error), are not cached.
//
// # Basic Usage
//
//	rc := cache.NewResponseCache(cache.NewMemoryStore(), cache.DefaultFreshness, logger)
//
//	if entry, ok := rc.Lookup(ctx, loc.Key()); ok {
//		return entry.Content
//	}
//
//	// ... fetch ...
//	rc.Store(ctx, loc.Key(), body, headers, time.Now())
//
// # Backends
//
// MemoryStore keeps entries in a mutex-guarded map. RedisStore keeps them
// in Redis under a per-process namespace, so several clients in one
// process can share a cache without anything surviving a restart.
//
// # Metrics
//
//   - fetch_cache_hits_total{layer} - Cache hits
//   - fetch_cache_misses_total - Cache misses
//   - fetch_cache_stores_total{result} - Store decisions (stored, refused)
//   - fetch_cache_expired_total - Entries purged on lookup
//   - fetch_cache_errors_total{operation} - Backend errors
package cache
