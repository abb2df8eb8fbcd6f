// Package metrics provides the Prometheus registry and HTTP exposition for
// the fetch engine. All metrics are defined in their respective packages
// (pool, cache, transport, client, local, batch) to maintain modularity and
// avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the fetch engine.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects everything registered on Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Unlabeled lists the metrics exported as soon as their package is linked.
// Labeled vectors only appear once a label combination has been observed.
var Unlabeled = []string{
	"fetch_cache_misses_total",
	"fetch_cache_expired_total",
	"fetch_pool_idle_connections",
	"fetch_stale_connection_retries_total",
	"fetch_redirects_followed_total",
	"fetch_redirect_limit_exceeded_total",
}

// Metrics Documentation
//
// Connection Pool Metrics (pkg/pool):
//   - fetch_pool_acquires_total{result="miss|reuse|dead"} (Counter): Checkouts by outcome
//   - fetch_pool_releases_total{result="pooled|closed"} (Counter): Releases by outcome
//   - fetch_pool_idle_connections (Gauge): Idle pooled connections
//   - fetch_dials_total{scheme} (Counter): New connections dialed
//   - fetch_dial_errors_total{stage="connect|tls"} (Counter): Failed dials by stage
//
// Cache Metrics (pkg/cache):
//   - fetch_cache_hits_total{layer="memory|redis"} (Counter): Cache hits by layer
//   - fetch_cache_misses_total (Counter): Cache misses
//   - fetch_cache_stores_total{result="stored|refused|error"} (Counter): Store attempts
//   - fetch_cache_expired_total (Counter): Expired entries purged on lookup
//   - fetch_cache_errors_total{operation} (Counter): Cache backend errors
//
// Transaction Metrics (pkg/transport):
//   - fetch_transactions_total{scheme, status} (Counter): Transactions by HTTP status
//   - fetch_transaction_duration_seconds{scheme} (Histogram): Transaction duration
//   - fetch_transaction_errors_total{class} (Counter): Errors by class (transport, protocol, unsupported_encoding)
//   - fetch_stale_connection_retries_total (Counter): Requests resent after a pooled connection went stale
//
// Fetch Metrics (pkg/client):
//   - fetch_fetches_total{scheme, outcome} (Counter): Fetches by outcome (ok, cache_hit, error, redirect_limit, malformed)
//   - fetch_fetch_duration_seconds{outcome} (Histogram): Fetch duration including redirects
//   - fetch_redirects_followed_total (Counter): Redirect hops followed
//   - fetch_redirect_limit_exceeded_total (Counter): Fetches aborted at the redirect limit
//
// Local Metrics (pkg/local):
//   - fetch_local_reads_total{scheme, outcome} (Counter): file: and data: reads
//
// Batch Metrics (pkg/batch):
//   - fetch_batch_fetches_total{result="success|error"} (Counter): Fetches issued by batch workers
//   - fetch_batch_duration_seconds (Histogram): Duration of whole batches
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(fetch_cache_hits_total[5m])) /
//   (sum(rate(fetch_cache_hits_total[5m])) + sum(rate(fetch_cache_misses_total[5m])))
//
//   # Connection Reuse Ratio
//   sum(rate(fetch_pool_acquires_total{result="reuse"}[5m])) / sum(rate(fetch_pool_acquires_total[5m]))
//
//   # Protocol Error Rate
//   rate(fetch_transaction_errors_total{class="protocol"}[5m])
//
//   # P95 Fetch Latency
//   histogram_quantile(0.95, rate(fetch_fetch_duration_seconds_bucket[5m]))
