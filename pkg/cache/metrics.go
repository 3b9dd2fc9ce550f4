package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks export page cache hits
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "export_cache_hits_total",
			Help: "Total number of export page cache hits",
		},
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "export_cache_misses_total",
			Help: "Total number of export page cache misses",
		},
	)

	// CacheSize tracks bytes written to the cache
	CacheSize = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "export_cache_bytes_total",
			Help: "Total bytes of export pages written to cache",
		},
	)

	// CachedRows tracks rows stored in the cache
	CachedRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "export_cache_rows_total",
			Help: "Total rows of export data written to cache",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "export_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
