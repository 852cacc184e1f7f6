package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/signwave/keypoint-server/pkg/keypoint"
)

// Status classifies the outcome of a cache lookup.
type Status int

const (
	// StatusHit means the word was found and its frames were returned.
	StatusHit Status = iota

	// StatusMiss means the backend answered and the word was absent,
	// expired or unreadable.
	StatusMiss

	// StatusUnavailable means the backend could not answer. Callers treat
	// the lookup as if no cache existed and must not skip the write-back
	// path on the next opportunity.
	StatusUnavailable
)

// String returns the status label used in logs.
func (s Status) String() string {
	switch s {
	case StatusHit:
		return "hit"
	case StatusMiss:
		return "miss"
	case StatusUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Backend stores fully decoded frame sets keyed by word.
//
// Get never propagates infrastructure errors: a backend that cannot answer
// reports StatusUnavailable so the caller falls through to the
// authoritative store. Set reports its error and leaves the fail-open
// decision to the caller.
type Backend interface {
	// Get returns the cached frames for word.
	Get(ctx context.Context, word string) ([]keypoint.Frame, Status)

	// Set stores frames for word with the given time-to-live. A zero or
	// negative ttl is a no-op.
	Set(ctx context.Context, word string, frames []keypoint.Frame, ttl time.Duration) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error

	// Name identifies the backend in logs and metrics.
	Name() string
}
