package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Acquires tracks checkout outcomes: reuse, miss or dead
	Acquires = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_pool_acquires_total",
			Help: "Total number of connection checkouts by outcome",
		},
		[]string{"result"},
	)

	// Releases tracks whether released connections were pooled or closed
	Releases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_pool_releases_total",
			Help: "Total number of connection releases by outcome",
		},
		[]string{"result"}, // "pooled", "closed"
	)

	// IdleConnections is the number of idle pooled connections
	IdleConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fetch_pool_idle_connections",
			Help: "Current number of idle pooled connections",
		},
	)

	// Dials tracks new transport connections by scheme
	Dials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_dials_total",
			Help: "Total number of new connections dialed",
		},
		[]string{"scheme"},
	)

	// DialErrors tracks failed dials by stage
	DialErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_dial_errors_total",
			Help: "Total number of failed dials by stage",
		},
		[]string{"stage"}, // "connect", "tls"
	)
)
