package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for HTTP transactions.
var (
	transactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_transactions_total",
		Help: "Total HTTP transactions by scheme and status",
	}, []string{"scheme", "status"})

	transactionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fetch_transaction_duration_seconds",
		Help:    "HTTP transaction duration in seconds by scheme",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"scheme"})

	transactionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_transaction_errors_total",
		Help: "Total failed HTTP transactions by error class",
	}, []string{"class"})

	staleRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetch_stale_connection_retries_total",
		Help: "Total requests resent after a pooled connection went stale",
	})
)
