package cache

import (
	"context"
	"sync"
	"time"

	"github.com/signwave/keypoint-server/pkg/keypoint"
)

// Memory is an in-process Backend for single-instance deployments and
// tests. Entries expire lazily: an expired entry is dropped by the read
// that finds it. Memory use is bounded by the vocabulary size, which for
// sign-language corpora is a few thousand words.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	frames  []keypoint.Frame
	expires time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return now.After(e.expires)
}

// NewMemory creates an empty in-process backend.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

// Get returns the cached frames for word. It never reports
// StatusUnavailable: process memory is always reachable.
func (m *Memory) Get(ctx context.Context, word string) ([]keypoint.Frame, Status) {
	key := Key(word)

	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		CacheMisses.WithLabelValues("memory").Inc()
		return nil, StatusMiss
	}

	if e.expired(time.Now()) {
		m.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have
		// refreshed the entry since the read above.
		if cur, ok := m.entries[key]; ok && cur.expired(time.Now()) {
			delete(m.entries, key)
		}
		m.mu.Unlock()

		CacheMisses.WithLabelValues("memory").Inc()
		return nil, StatusMiss
	}

	CacheHits.WithLabelValues("memory").Inc()

	// Hand out a copy of the slice so a caller reslicing or rewriting its
	// records cannot corrupt the live entry.
	out := make([]keypoint.Frame, len(e.frames))
	copy(out, e.frames)
	return out, StatusHit
}

// Set stores the frames for word with the given TTL.
func (m *Memory) Set(ctx context.Context, word string, frames []keypoint.Frame, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if frames == nil {
		frames = []keypoint.Frame{}
	}

	m.mu.Lock()
	m.entries[Key(word)] = memoryEntry{
		frames:  frames,
		expires: time.Now().Add(ttl),
	}
	m.mu.Unlock()
	return nil
}

// Delete removes the cached frames for word.
func (m *Memory) Delete(ctx context.Context, word string) error {
	m.mu.Lock()
	delete(m.entries, Key(word))
	m.mu.Unlock()
	return nil
}

// Len returns the number of entries currently held, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Ping always succeeds.
func (m *Memory) Ping(ctx context.Context) error {
	return nil
}

// Close drops all entries.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.entries = make(map[string]memoryEntry)
	m.mu.Unlock()
	return nil
}

// Name identifies the backend in logs and metrics.
func (m *Memory) Name() string {
	return "memory"
}
