package retrieval

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
)

var warmWordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "keypoint_warm_words_total",
	Help: "Total cache warm outcomes by result",
}, []string{"result"}) // "loaded", "failed"

// WarmStats summarizes one warm run.
type WarmStats struct {
	// Loaded counts words now present in the cache, whether this run
	// fetched them or found them already cached.
	Loaded int

	// Failed counts words whose store fetch failed.
	Failed int

	// Duration is the wall time of the whole run.
	Duration time.Duration
}

// Warm pre-populates the cache for a word list, typically the most
// frequently requested vocabulary, so first readers after a deploy or cache
// flush do not all pay the store round trip. Lookups run with bounded
// concurrency; a failing word is logged and counted, never aborts the rest.
func (s *Service) Warm(ctx context.Context, words []string) WarmStats {
	start := time.Now()

	concurrency := s.config.WarmConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	s.logger.Info().
		Int("words", len(words)).
		Int("concurrency", concurrency).
		Msg("Starting cache warm")

	var loaded, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, word := range words {
		g.Go(func() error {
			if ctx.Err() != nil {
				failed.Add(1)
				warmWordsTotal.WithLabelValues("failed").Inc()
				return nil
			}

			if _, err := s.GetWord(ctx, word, Options{}); err != nil {
				failed.Add(1)
				warmWordsTotal.WithLabelValues("failed").Inc()
				s.logger.Warn().
					Err(err).
					Str("word", word).
					Msg("Warm fetch failed")
				return nil
			}

			loaded.Add(1)
			warmWordsTotal.WithLabelValues("loaded").Inc()
			return nil
		})
	}
	// Workers never return errors; per-word failures are tolerated above.
	_ = g.Wait()

	stats := WarmStats{
		Loaded:   int(loaded.Load()),
		Failed:   int(failed.Load()),
		Duration: time.Since(start),
	}

	s.logger.Info().
		Int("loaded", stats.Loaded).
		Int("failed", stats.Failed).
		Int("total", len(words)).
		Dur("duration", stats.Duration).
		Msg("Cache warm complete")

	return stats
}
