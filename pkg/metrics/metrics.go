// Package metrics provides the centralized Prometheus registry reference for
// the keypoint server. All metrics are defined in their respective packages
// (store, cache, retrieval, httpapi) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the keypoint server.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Store Metrics (pkg/store):
//   - keypoint_store_queries_total{kind} (Counter): Completed store queries by kind (word, frame)
//   - keypoint_store_query_duration_seconds (Histogram): Query duration including connection acquisition
//   - keypoint_store_errors_total{class} (Counter): Store errors by class (connection, query)
//   - keypoint_store_pool_fallbacks_total (Counter): Queries that fell back to a direct connection
//
// Cache Metrics (pkg/cache):
//   - keypoint_cache_hits_total{backend} (Counter): Cache hits by backend (memory, redis)
//   - keypoint_cache_misses_total{backend} (Counter): Cache misses by backend
//   - keypoint_cache_errors_total{operation} (Counter): Cache operation errors (get, set, delete, decode)
//   - keypoint_cache_entry_bytes (Histogram): Serialized entry sizes
//
// Retrieval Metrics (pkg/retrieval):
//   - keypoint_requests_total{source} (Counter): Served word lookups by source (cache, store)
//   - keypoint_request_duration_seconds{source} (Histogram): Lookup duration by source
//   - keypoint_decode_errors_total (Counter): Stored rows that failed payload decoding
//   - keypoint_warm_words_total{result} (Counter): Cache warm outcomes by result (loaded, failed)
//
// HTTP Metrics (internal/httpapi):
//   - keypoint_http_requests_total{code} (Counter): HTTP responses by status code
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(keypoint_cache_hits_total[5m])) /
//   (sum(rate(keypoint_cache_hits_total[5m])) + sum(rate(keypoint_cache_misses_total[5m])))
//
//   # Store Read-Through Rate
//   rate(keypoint_requests_total{source="store"}[5m])
//
//   # P95 Lookup Latency
//   histogram_quantile(0.95, rate(keypoint_request_duration_seconds_bucket[5m]))
//
//   # Pool Health
//   rate(keypoint_store_pool_fallbacks_total[5m])
//
//   # Error Budget
//   rate(keypoint_store_errors_total[5m])
