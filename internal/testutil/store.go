// Package testutil provides test doubles for the keypoint server.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/signwave/keypoint-server/pkg/store"
)

// FakeStore is an in-memory stand-in for the durable store with query
// counting and error injection. It honors the store contract: rows come
// back ordered by frame number, frame queries return at most one row,
// limits truncate, unknown words yield empty results.
type FakeStore struct {
	mu            sync.Mutex
	rows          map[string][]store.FrameRow
	err           error
	delay         time.Duration
	queries       int
	queriesByWord map[string]int
}

// NewFakeStore creates an empty fake store.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		rows:          make(map[string][]store.FrameRow),
		queriesByWord: make(map[string]int),
	}
}

// SetRows replaces the rows for word.
func (f *FakeStore) SetRows(word string, rows ...store.FrameRow) {
	sorted := make([]store.FrameRow, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].FrameNumber < sorted[j].FrameNumber
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[word] = sorted
}

// SetWord registers one payload per frame for word, frames numbered from 0.
func (f *FakeStore) SetWord(word string, payloads ...string) {
	rows := make([]store.FrameRow, len(payloads))
	for i, p := range payloads {
		rows[i] = store.FrameRow{FrameNumber: i, Keypoints: []byte(p)}
	}
	f.SetRows(word, rows...)
}

// FailWith makes every subsequent query return err. Pass nil to heal.
func (f *FakeStore) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// SetDelay makes every subsequent query take at least d. Queries run the
// delay after releasing the lock, so concurrent queries overlap like they
// would against a real store.
func (f *FakeStore) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// QueryFrames implements the retrieval store interface.
func (f *FakeStore) QueryFrames(ctx context.Context, word string, q store.Query) ([]store.FrameRow, error) {
	f.mu.Lock()

	f.queries++
	f.queriesByWord[word]++

	err := f.err
	delay := f.delay
	rows := f.rows[word]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}
	if q.Frame != nil {
		for _, row := range rows {
			if row.FrameNumber == *q.Frame {
				return []store.FrameRow{row}, nil
			}
		}
		return nil, nil
	}

	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}

	out := make([]store.FrameRow, len(rows))
	copy(out, rows)
	return out, nil
}

// Queries returns the total number of queries seen.
func (f *FakeStore) Queries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries
}

// QueriesFor returns the number of queries seen for word.
func (f *FakeStore) QueriesFor(word string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queriesByWord[word]
}
