package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by backend (memory, redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keypoint_cache_hits_total",
			Help: "Total number of keypoint cache hits",
		},
		[]string{"backend"},
	)

	// CacheMisses tracks cache misses by backend
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keypoint_cache_misses_total",
			Help: "Total number of keypoint cache misses",
		},
		[]string{"backend"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keypoint_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "decode"
	)

	// CacheEntryBytes tracks the serialized size of entries moving
	// through the cache
	CacheEntryBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "keypoint_cache_entry_bytes",
			Help:    "Serialized size of keypoint cache entries in bytes",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10),
		},
	)
)
