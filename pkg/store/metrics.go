package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keypoint_store_queries_total",
			Help: "Total number of completed store queries by kind (word, frame)",
		},
		[]string{"kind"},
	)

	storeQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "keypoint_store_query_duration_seconds",
			Help:    "Store query duration including connection acquisition",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	storeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keypoint_store_errors_total",
			Help: "Total number of store errors by class (connection, query)",
		},
		[]string{"class"},
	)

	storePoolFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keypoint_store_pool_fallbacks_total",
			Help: "Total number of queries that fell back to a direct connection",
		},
	)
)
