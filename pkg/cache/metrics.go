package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (memory, redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_cache_hits_total",
			Help: "Total number of response cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fetch_cache_misses_total",
			Help: "Total number of response cache misses",
		},
	)

	// CacheStores tracks store decisions
	CacheStores = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_cache_stores_total",
			Help: "Total number of store attempts by result",
		},
		[]string{"result"}, // "stored", "refused", "error"
	)

	// CacheExpired tracks entries purged because a lookup found them stale
	CacheExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fetch_cache_expired_total",
			Help: "Total number of expired entries purged on lookup",
		},
	)

	// CacheErrors tracks cache backend errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_cache_errors_total",
			Help: "Total number of cache backend errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
