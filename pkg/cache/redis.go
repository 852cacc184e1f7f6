package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/signwave/keypoint-server/pkg/keypoint"
)

// Redis is a Backend shared by every server instance pointing at the same
// Redis database. Expiry is delegated to Redis through per-key TTLs, so
// stale entries vanish without a reaper.
type Redis struct {
	client    *redis.Client
	opTimeout time.Duration
	logger    zerolog.Logger
}

// NewRedis creates a Redis backend. Every cache operation is bounded by
// opTimeout on top of the caller's context so a slow Redis degrades reads
// instead of stalling them.
func NewRedis(client *redis.Client, opTimeout time.Duration, logger zerolog.Logger) *Redis {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if opTimeout <= 0 {
		opTimeout = 2 * time.Second
	}
	return &Redis{
		client:    client,
		opTimeout: opTimeout,
		logger:    logger,
	}
}

// Get retrieves the cached frames for word.
// Infrastructure failures are counted, logged and reported as
// StatusUnavailable. An entry that no longer parses is deleted and reported
// as StatusMiss so the next read repopulates it.
func (r *Redis) Get(ctx context.Context, word string) ([]keypoint.Frame, Status) {
	opCtx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	data, err := r.client.Get(opCtx, Key(word)).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.WithLabelValues("redis").Inc()
			return nil, StatusMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		r.logger.Warn().
			Err(err).
			Str("word", word).
			Msg("Redis get failed - treating cache as unavailable")
		return nil, StatusUnavailable
	}

	frames, err := keypoint.DecodeFrames(data)
	if err != nil {
		CacheErrors.WithLabelValues("decode").Inc()
		r.logger.Warn().
			Err(err).
			Str("word", word).
			Msg("Corrupted cache entry - deleting")
		_ = r.Delete(context.WithoutCancel(ctx), word)
		CacheMisses.WithLabelValues("redis").Inc()
		return nil, StatusMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	CacheEntryBytes.Observe(float64(len(data)))
	return frames, StatusHit
}

// Set stores the frames for word with the given TTL. Redis removes the key
// itself once the TTL lapses.
func (r *Redis) Set(ctx context.Context, word string, frames []keypoint.Frame, ttl time.Duration) error {
	if ttl <= 0 {
		// Would be expired on arrival, don't cache.
		return nil
	}
	if frames == nil {
		frames = []keypoint.Frame{}
	}

	data, err := keypoint.Encode(frames)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal frames: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	if err := r.client.Set(opCtx, Key(word), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheEntryBytes.Observe(float64(len(data)))
	return nil
}

// Delete removes the cached frames for word.
func (r *Redis) Delete(ctx context.Context, word string) error {
	opCtx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	if err := r.client.Del(opCtx, Key(word)).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	return r.client.Ping(opCtx).Err()
}

// Close releases the underlying Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Name identifies the backend in logs and metrics.
func (r *Redis) Name() string {
	return "redis"
}
