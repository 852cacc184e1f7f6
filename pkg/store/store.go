// Package store executes point and range queries against the durable
// keypoint table through a bounded connection pool.
//
// The schema it expects (owned by the upstream extraction pipeline):
//
//	CREATE TABLE words (
//	    word         VARCHAR(255) NOT NULL,
//	    frame_number INT          NOT NULL,
//	    keypoints    TEXT         NOT NULL,
//	    PRIMARY KEY (word, frame_number)
//	);
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Errors surfaced to callers. Both are fatal to the request that hit them;
// retries are the caller's responsibility.
var (
	// ErrConnection indicates no store connection could be acquired: the
	// pool is exhausted or unreachable and the direct fallback failed too.
	ErrConnection = errors.New("store connection unavailable")

	// ErrQuery indicates the store rejected or failed the query itself.
	ErrQuery = errors.New("store query failed")
)

// Config holds store connection settings.
type Config struct {
	// Driver is the database/sql driver name ("mysql" or "sqlite").
	Driver string

	// DSN is the driver-specific data source name.
	DSN string

	// PoolSize is the hard bound on concurrently open connections per
	// handle. Callers beyond the bound wait up to PoolTimeout, then fail.
	PoolSize int

	// PoolTimeout bounds how long one query waits to acquire a connection.
	PoolTimeout time.Duration

	// ConnectTimeout bounds the startup liveness probe.
	ConnectTimeout time.Duration
}

// DefaultConfig returns a safe default configuration for the given driver
// and DSN.
func DefaultConfig(driver, dsn string) Config {
	return Config{
		Driver:         driver,
		DSN:            dsn,
		PoolSize:       5,
		PoolTimeout:    3 * time.Second,
		ConnectTimeout: 5 * time.Second,
	}
}

// Query selects which rows of a word to fetch.
type Query struct {
	// Frame, when set, selects exactly one row. Limit is ignored then.
	Frame *int

	// Limit caps the row count of a full-word query. Zero means no cap.
	Limit int
}

// FrameRow is one stored row: the frame's sequence number and its raw,
// still-serialized keypoint payload.
type FrameRow struct {
	FrameNumber int
	Keypoints   []byte
}

// Store runs keypoint queries over a bounded connection pool with a direct
// per-call fallback lane.
type Store struct {
	pool        *sql.DB // nil when the startup probe failed
	direct      *sql.DB // zero idle connections; dials per acquisition
	poolTimeout time.Duration
	logger      zerolog.Logger
}

// Open prepares the pooled and fallback handles and probes the pool once.
// A failed probe is not fatal: the store then runs on direct connections
// for the process lifetime and the condition is logged. Open fails only on
// unusable configuration (unknown driver, empty DSN).
func Open(cfg Config, logger zerolog.Logger) (*Store, error) {
	if cfg.Driver == "" {
		return nil, fmt.Errorf("store driver is required")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store DSN is required")
	}
	if cfg.PoolSize < 1 {
		return nil, fmt.Errorf("pool size must be >= 1 (got %d)", cfg.PoolSize)
	}
	if cfg.PoolTimeout <= 0 {
		cfg.PoolTimeout = 3 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	pool, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store pool: %w", err)
	}
	pool.SetMaxOpenConns(cfg.PoolSize)
	pool.SetMaxIdleConns(cfg.PoolSize)

	// The fallback lane carries the same hard bound but keeps nothing idle:
	// each acquisition dials, each release closes.
	direct, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("open store fallback handle: %w", err)
	}
	direct.SetMaxOpenConns(cfg.PoolSize)
	direct.SetMaxIdleConns(0)

	s := &Store{
		pool:        pool,
		direct:      direct,
		poolTimeout: cfg.PoolTimeout,
		logger:      logger,
	}

	probeCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := pool.PingContext(probeCtx); err != nil {
		// Pool creation failed; queries run on the direct lane from now on.
		logger.Warn().
			Err(err).
			Str("driver", cfg.Driver).
			Msg("Store pool probe failed - falling back to direct connections")
		pool.Close()
		s.pool = nil
	}

	return s, nil
}

// QueryFrames returns the stored rows for a word, ordered ascending by frame
// number. With q.Frame set it returns at most the one matching row. With
// q.Limit > 0 (and no frame) the result is truncated to that many rows.
// A word with no rows yields an empty result, not an error.
func (s *Store) QueryFrames(ctx context.Context, word string, q Query) ([]FrameRow, error) {
	if word == "" {
		return nil, fmt.Errorf("word is required")
	}

	kind := "word"
	if q.Frame != nil {
		kind = "frame"
	}

	start := time.Now()
	defer func() {
		storeQueryDuration.Observe(time.Since(start).Seconds())
	}()

	conn, err := s.acquire(ctx)
	if err != nil {
		storeErrorsTotal.WithLabelValues("connection").Inc()
		return nil, err
	}
	defer conn.Close()

	var (
		rows *sql.Rows
		qErr error
	)
	switch {
	case q.Frame != nil:
		rows, qErr = conn.QueryContext(ctx,
			"SELECT frame_number, keypoints FROM words WHERE word = ? AND frame_number = ?",
			word, *q.Frame)
	case q.Limit > 0:
		rows, qErr = conn.QueryContext(ctx,
			"SELECT frame_number, keypoints FROM words WHERE word = ? ORDER BY frame_number LIMIT ?",
			word, q.Limit)
	default:
		rows, qErr = conn.QueryContext(ctx,
			"SELECT frame_number, keypoints FROM words WHERE word = ? ORDER BY frame_number",
			word)
	}
	if qErr != nil {
		storeErrorsTotal.WithLabelValues("query").Inc()
		return nil, fmt.Errorf("%w: %v", ErrQuery, qErr)
	}
	defer rows.Close()

	var out []FrameRow
	for rows.Next() {
		var fr FrameRow
		if err := rows.Scan(&fr.FrameNumber, &fr.Keypoints); err != nil {
			storeErrorsTotal.WithLabelValues("query").Inc()
			return nil, fmt.Errorf("%w: scan row: %v", ErrQuery, err)
		}
		out = append(out, fr)
	}
	if err := rows.Err(); err != nil {
		storeErrorsTotal.WithLabelValues("query").Inc()
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}

	storeQueriesTotal.WithLabelValues(kind).Inc()
	return out, nil
}

// acquire checks one connection out for the duration of a single query.
// The pooled lane is tried first; on failure the direct lane is dialed.
// The returned connection must be closed on every exit path.
func (s *Store) acquire(ctx context.Context) (*sql.Conn, error) {
	var poolErr error
	if s.pool != nil {
		poolCtx, cancel := context.WithTimeout(ctx, s.poolTimeout)
		conn, err := s.pool.Conn(poolCtx)
		cancel()
		if err == nil {
			return conn, nil
		}
		poolErr = err
		storePoolFallbacksTotal.Inc()
		s.logger.Warn().
			Err(err).
			Msg("Pooled connection unavailable - trying direct connection")
	}

	// The fallback dial gets its own budget: waiting out an exhausted pool
	// may have consumed the first one entirely.
	directCtx, cancel := context.WithTimeout(ctx, s.poolTimeout)
	defer cancel()

	conn, err := s.direct.Conn(directCtx)
	if err == nil {
		return conn, nil
	}

	if poolErr != nil {
		return nil, fmt.Errorf("%w: pool: %v; direct: %v", ErrConnection, poolErr, err)
	}
	return nil, fmt.Errorf("%w: %v", ErrConnection, err)
}

// Ping probes store reachability on whichever lane is active.
func (s *Store) Ping(ctx context.Context) error {
	if s.pool != nil {
		return s.pool.PingContext(ctx)
	}
	return s.direct.PingContext(ctx)
}

// Close releases both handles.
func (s *Store) Close() error {
	var errs []error
	if s.pool != nil {
		errs = append(errs, s.pool.Close())
	}
	errs = append(errs, s.direct.Close())
	return errors.Join(errs...)
}
