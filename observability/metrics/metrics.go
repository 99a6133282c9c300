// Package metrics defines the Prometheus collectors exported by the proxy.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "guomen"
)

var (
	// Authentication metrics
	AuthAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_attempts_total",
		Help:      "Authentication attempts by result",
	}, []string{"result"})

	AuthDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "auth_duration_seconds",
		Help:      "Authentication duration in seconds, including DNS fallback",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
	})

	DNSLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dns_lookups_total",
		Help:      "Reverse-DNS lookups by outcome",
	}, []string{"outcome"}) // outcome: hit, miss, error

	// User catalog metrics
	UsersLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "users_loaded",
		Help:      "Grant rows in the active catalog",
	})

	DatabasesKnown = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "databases_known",
		Help:      "Database names in the active catalog",
	})

	LoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "user_loads_total",
		Help:      "Catalog loads by status",
	}, []string{"status"}) // status: ok, error

	LoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "user_load_duration_seconds",
		Help:      "Catalog load duration in seconds",
		Buckets:   prometheus.DefBuckets,
	})

	// Snapshot metrics
	SnapshotOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshot_operations_total",
		Help:      "Snapshot file operations by kind and status",
	}, []string{"op", "status"}) // op: save, load
)
