// Package metrics registers the Prometheus metrics used by the cache.
// Import this package (via blank import) from the server entry point to
// register all metrics before the /metrics handler is mounted.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache-level counters, gauges and histograms.
var (
	// LookupsTotal counts lookups labelled by outcome ("hit_exact",
	// "hit_similar", "miss").
	LookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semcache_lookups_total",
			Help: "Total number of cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	// SimilarityScore observes the best-match cosine similarity of lookups
	// that cleared the threshold.
	SimilarityScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "semcache_similarity_score",
			Help:    "Cosine similarity of accepted matches.",
			Buckets: []float64{.80, .85, .90, .925, .95, .97, .98, .99, .995, 1},
		},
	)

	// Entries tracks the number of live entries in the index.
	Entries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "semcache_entries",
			Help: "Live entries in the embedding index.",
		},
	)

	// EvictionsTotal counts removals labelled by reason ("ttl", "capacity").
	EvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semcache_evictions_total",
			Help: "Total entries evicted, by reason.",
		},
		[]string{"reason"},
	)

	// InflightWaiters tracks callers currently blocked on another caller's
	// in-flight computation.
	InflightWaiters = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "semcache_inflight_waiters",
			Help: "Callers waiting on a shared in-flight computation.",
		},
	)

	// SharedResults counts resolve calls that were served by another
	// caller's computation instead of issuing their own.
	SharedResults = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "semcache_shared_results_total",
			Help: "Resolve calls coalesced into another caller's computation.",
		},
	)

	// ComputeDuration observes the latency of the underlying computation
	// issued on a cache miss.
	ComputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "semcache_compute_duration_seconds",
			Help:    "Latency of miss-path computations in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// PersistenceErrors counts failed operations against the durable store
	// labelled by op ("load", "save", "delete").
	PersistenceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semcache_persistence_errors_total",
			Help: "Failed durable-store operations by op.",
		},
		[]string{"op"},
	)
)
