// Package retrieval provides the core read-through lookup pipeline joining
// the keypoint cache and the durable store.
package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/signwave/keypoint-server/pkg/cache"
	"github.com/signwave/keypoint-server/pkg/keypoint"
	"github.com/signwave/keypoint-server/pkg/store"
)

// Prometheus metrics for retrieval operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keypoint_requests_total",
		Help: "Total served word lookups by source",
	}, []string{"source"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "keypoint_request_duration_seconds",
		Help:    "Word lookup duration in seconds by source",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
	}, []string{"source"})

	decodeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keypoint_decode_errors_total",
		Help: "Total stored rows that failed payload decoding",
	})
)

// Frames is the slice of the store the service needs. *store.Store satisfies
// it; tests substitute counting fakes.
type Frames interface {
	QueryFrames(ctx context.Context, word string, q store.Query) ([]store.FrameRow, error)
}

// Config holds the service configuration.
type Config struct {
	// TTL is how long cached words stay fresh.
	TTL time.Duration

	// RoundDecimals is the default display rounding applied to responses.
	// Negative disables rounding.
	RoundDecimals int

	// SingleFlight collapses concurrent cache misses for the same word into
	// one store query. Off by default: with it off, each concurrent miss
	// queries the store independently.
	SingleFlight bool

	// WarmConcurrency is the number of parallel lookups a Warm run uses.
	WarmConcurrency int
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		TTL:             time.Hour,
		RoundDecimals:   4,
		SingleFlight:    false,
		WarmConcurrency: 4,
	}
}

// Options narrows a single lookup.
type Options struct {
	// Frame, when set, selects exactly one frame. Frame requests bypass the
	// cache entirely.
	Frame *int

	// Limit caps the returned frame count. Limited requests bypass the
	// cache entirely. Zero means no cap.
	Limit int

	// RoundDecimals overrides the service default for this lookup.
	// Nil keeps the default; a negative value disables rounding.
	RoundDecimals *int
}

// Service answers word lookups cache-first with read-through to the store.
type Service struct {
	store          Frames
	cache          cache.Backend
	cacheAvailable bool
	config         Config
	logger         zerolog.Logger
	group          singleflight.Group
}

// New creates a retrieval service. backend may be nil to run without a
// cache. A non-nil backend is probed once: if it does not answer, the
// service runs without it for the process lifetime and the condition is
// logged, never surfaced to lookups.
func New(frames Frames, backend cache.Backend, cfg Config, logger zerolog.Logger) (*Service, error) {
	if frames == nil {
		return nil, fmt.Errorf("store is required")
	}

	s := &Service{
		store:  frames,
		cache:  backend,
		config: cfg,
		logger: logger,
	}

	if backend != nil {
		if err := backend.Ping(context.Background()); err != nil {
			logger.Warn().
				Err(err).
				Str("backend", backend.Name()).
				Msg("Cache backend unreachable - serving from store only")
		} else {
			s.cacheAvailable = true
			logger.Info().
				Str("backend", backend.Name()).
				Dur("ttl", cfg.TTL).
				Msg("Cache backend ready")
		}
	}

	return s, nil
}

// GetWord returns the frames for word, already display-rounded.
// Whole-word lookups are served from the cache when possible and written
// back after a store fetch. Frame and limited lookups always go to the
// store. Cache trouble degrades to store reads; store errors propagate
// wrapped in store.ErrConnection or store.ErrQuery.
func (s *Service) GetWord(ctx context.Context, word string, opts Options) ([]keypoint.Frame, error) {
	if word == "" {
		return nil, fmt.Errorf("word is required")
	}

	source := "store"
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(source).Observe(time.Since(startTime).Seconds())
	}()

	// A lookup is cacheable only when it wants the whole word and a live
	// backend exists. Partial results must never shadow the full frame set.
	cacheable := opts.Frame == nil && opts.Limit == 0 && s.cacheUsable()

	// Step 1: Cache lookup
	if cacheable {
		frames, status := s.cache.Get(ctx, word)
		if status == cache.StatusHit {
			source = "cache"
			requestsTotal.WithLabelValues(source).Inc()
			s.logger.Debug().
				Str("word", word).
				Int("rows", len(frames)).
				Str("backend", s.cache.Name()).
				Msg("Cache hit")
			return s.round(frames, opts), nil
		}
		s.logger.Debug().
			Str("word", word).
			Str("status", status.String()).
			Msg("Cache lookup did not answer")
	}

	// Step 2: Fetch from the store, optionally deduplicating concurrent
	// misses for the same word.
	frames, err := s.fetch(ctx, word, opts, cacheable)
	if err != nil {
		return nil, err
	}

	requestsTotal.WithLabelValues(source).Inc()
	return s.round(frames, opts), nil
}

func (s *Service) fetch(ctx context.Context, word string, opts Options, cacheable bool) ([]keypoint.Frame, error) {
	if s.config.SingleFlight && cacheable {
		// The collapsed fetch runs on a detached context: the first
		// caller's cancellation must not fail everyone who piled onto its
		// flight. Each caller still honors its own context while waiting.
		ch := s.group.DoChan(word, func() (any, error) {
			return s.fetchStore(context.WithoutCancel(ctx), word, opts, cacheable)
		})
		select {
		case res := <-ch:
			if res.Err != nil {
				return nil, res.Err
			}
			if res.Shared {
				s.logger.Debug().Str("word", word).Msg("Store query shared across concurrent lookups")
			}
			return res.Val.([]keypoint.Frame), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.fetchStore(ctx, word, opts, cacheable)
}

// fetchStore is the read-through tail: query, decode, write back.
func (s *Service) fetchStore(ctx context.Context, word string, opts Options, cacheable bool) ([]keypoint.Frame, error) {
	// Step 3: Store query. Failures propagate to the caller untouched; the
	// caller decides whether to retry.
	rows, err := s.store.QueryFrames(ctx, word, store.Query{Frame: opts.Frame, Limit: opts.Limit})
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("word", word).
			Msg("Store query failed")
		return nil, err
	}

	// Step 4: Decode rows. One bad row degrades to an empty payload so its
	// siblings still render.
	frames := make([]keypoint.Frame, 0, len(rows))
	for _, row := range rows {
		payload, err := keypoint.Decode(row.Keypoints)
		if err != nil {
			decodeErrorsTotal.Inc()
			s.logger.Warn().
				Err(err).
				Str("word", word).
				Int("frame", row.FrameNumber).
				Msg("Undecodable keypoint payload - returning empty frame")
			payload = []any{}
		}
		frames = append(frames, keypoint.Frame{
			FrameNumber: row.FrameNumber,
			Keypoints:   payload,
		})
	}

	// Step 5: Cache write-back, best effort. Only whole-word results with
	// at least one row are worth a slot.
	if cacheable && len(frames) > 0 {
		if err := s.cache.Set(ctx, word, frames, s.config.TTL); err != nil {
			s.logger.Warn().
				Err(err).
				Str("word", word).
				Str("backend", s.cache.Name()).
				Msg("Cache write failed - continuing")
		} else {
			s.logger.Debug().
				Str("word", word).
				Int("rows", len(frames)).
				Dur("ttl", s.config.TTL).
				Msg("Cached word")
		}
	}

	return frames, nil
}

// round applies display rounding. The cache always holds the pre-rounding
// form, so per-request precision overrides never pollute shared entries.
func (s *Service) round(frames []keypoint.Frame, opts Options) []keypoint.Frame {
	decimals := s.config.RoundDecimals
	if opts.RoundDecimals != nil {
		decimals = *opts.RoundDecimals
	}
	return keypoint.RoundFrames(frames, decimals)
}

func (s *Service) cacheUsable() bool {
	return s.cache != nil && s.cacheAvailable
}
