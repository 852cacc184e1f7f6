package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/signwave/keypoint-server/pkg/cache"
	"github.com/signwave/keypoint-server/pkg/keypoint"
)

// MockBackend wraps a real in-process cache backend with call counters and
// switchable failure modes, so tests can observe exactly which cache
// operations a flow performed and how it behaves when they fail.
type MockBackend struct {
	mu    sync.Mutex
	inner cache.Backend

	failPing bool
	failGets bool
	failSets bool

	getCalls  int
	setCalls  int
	pingCalls int
}

// NewMockBackend creates a MockBackend over a fresh memory backend.
func NewMockBackend() *MockBackend {
	return &MockBackend{inner: cache.NewMemory()}
}

// FailPing makes Ping fail when v is true.
func (m *MockBackend) FailPing(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPing = v
}

// FailGets makes every Get report StatusUnavailable when v is true.
func (m *MockBackend) FailGets(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failGets = v
}

// FailSets makes every Set fail when v is true.
func (m *MockBackend) FailSets(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSets = v
}

// Get implements cache.Backend.
func (m *MockBackend) Get(ctx context.Context, word string) ([]keypoint.Frame, cache.Status) {
	m.mu.Lock()
	m.getCalls++
	fail := m.failGets
	m.mu.Unlock()

	if fail {
		return nil, cache.StatusUnavailable
	}
	return m.inner.Get(ctx, word)
}

// Set implements cache.Backend.
func (m *MockBackend) Set(ctx context.Context, word string, frames []keypoint.Frame, ttl time.Duration) error {
	m.mu.Lock()
	m.setCalls++
	fail := m.failSets
	m.mu.Unlock()

	if fail {
		return fmt.Errorf("injected set failure")
	}
	return m.inner.Set(ctx, word, frames, ttl)
}

// Ping implements cache.Backend.
func (m *MockBackend) Ping(ctx context.Context) error {
	m.mu.Lock()
	m.pingCalls++
	fail := m.failPing
	m.mu.Unlock()

	if fail {
		return fmt.Errorf("injected ping failure")
	}
	return m.inner.Ping(ctx)
}

// Close implements cache.Backend.
func (m *MockBackend) Close() error {
	return m.inner.Close()
}

// Name implements cache.Backend.
func (m *MockBackend) Name() string {
	return "mock"
}

// GetCalls returns the number of Get operations seen.
func (m *MockBackend) GetCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getCalls
}

// SetCalls returns the number of Set operations seen.
func (m *MockBackend) SetCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setCalls
}

// PingCalls returns the number of Ping operations seen.
func (m *MockBackend) PingCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingCalls
}
