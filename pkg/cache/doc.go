// Package cache stores decoded per-word frame sets with TTL expiry.
//
// Two backends implement the same Backend interface:
//
// - Redis: shared across server instances, expiry via native per-key TTLs
// - Memory: in-process map for single-instance deployments and tests
//
// Both store the frames exactly as decoded from the durable store, before
// any display rounding, so one entry serves every rounding precision.
//
// Lookups report a typed Status instead of an error. A backend that cannot
// answer says StatusUnavailable and the caller reads through to the store;
// an unreadable entry is deleted and reported as StatusMiss. Cache failures
// therefore degrade latency, never availability.
//
// # Basic Usage
//
//	// Create Redis client
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	// Create cache backend
//	backend := cache.NewRedis(redisClient, 2*time.Second, logger)
//
//	// Look up a word
//	frames, status := backend.Get(ctx, "hello")
//	if status != cache.StatusHit {
//		// Miss or unavailable - fetch from the store
//	}
//
//	// Store a word's frames for an hour
//	if err := backend.Set(ctx, "hello", frames, time.Hour); err != nil {
//		// Log and continue - cache writes are best effort
//	}
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - keypoint_cache_hits_total{backend} - Cache hits
//   - keypoint_cache_misses_total{backend} - Cache misses
//   - keypoint_cache_errors_total{operation} - Cache operation errors
//   - keypoint_cache_entry_bytes - Serialized entry sizes
package cache
