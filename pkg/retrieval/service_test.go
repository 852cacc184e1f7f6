package retrieval

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/signwave/keypoint-server/internal/testutil"
	"github.com/signwave/keypoint-server/pkg/cache"
	"github.com/signwave/keypoint-server/pkg/store"
)

func intPtr(v int) *int { return &v }

// newTestService wires a service over the given doubles with a long TTL and
// rounding disabled, so tests opt in to those behaviors explicitly.
func newTestService(t *testing.T, frames Frames, backend cache.Backend, mutate ...func(*Config)) *Service {
	t.Helper()

	cfg := Config{TTL: time.Hour, RoundDecimals: -1}
	for _, m := range mutate {
		m(&cfg)
	}

	s, err := New(frames, backend, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestNew_RequiresStore(t *testing.T) {
	if _, err := New(nil, nil, DefaultConfig(), zerolog.Nop()); err == nil {
		t.Fatal("New() succeeded without a store, want error")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.TTL != time.Hour {
		t.Errorf("TTL = %v, want 1h", cfg.TTL)
	}
	if cfg.RoundDecimals != 4 {
		t.Errorf("RoundDecimals = %d, want 4", cfg.RoundDecimals)
	}
	if cfg.SingleFlight {
		t.Error("SingleFlight = true, want false by default")
	}
	if cfg.WarmConcurrency != 4 {
		t.Errorf("WarmConcurrency = %d, want 4", cfg.WarmConcurrency)
	}
}

func TestGetWord_EmptyWord(t *testing.T) {
	s := newTestService(t, testutil.NewFakeStore(), nil)

	if _, err := s.GetWord(context.Background(), "", Options{}); err == nil {
		t.Fatal("GetWord() succeeded with empty word, want error")
	}
}

func TestGetWord_UnknownWordIsEmptyNotError(t *testing.T) {
	fake := testutil.NewFakeStore()
	backend := testutil.NewMockBackend()
	s := newTestService(t, fake, backend)

	frames, err := s.GetWord(context.Background(), "no-such-word", Options{})
	if err != nil {
		t.Fatalf("GetWord() error = %v, want nil for unknown word", err)
	}
	if frames == nil || len(frames) != 0 {
		t.Errorf("frames = %v, want empty non-nil slice", frames)
	}
	if got := backend.SetCalls(); got != 0 {
		t.Errorf("cache writes = %d, want 0 for empty results", got)
	}
}

func TestGetWord_SecondReadComesFromCache(t *testing.T) {
	fake := testutil.NewFakeStore()
	fake.SetWord("hello", `[[0.1,0.2]]`, `[[0.3,0.4]]`)
	backend := testutil.NewMockBackend()
	s := newTestService(t, fake, backend)
	ctx := context.Background()

	first, err := s.GetWord(ctx, "hello", Options{})
	if err != nil {
		t.Fatalf("first GetWord() error = %v", err)
	}
	second, err := s.GetWord(ctx, "hello", Options{})
	if err != nil {
		t.Fatalf("second GetWord() error = %v", err)
	}

	if got := fake.QueriesFor("hello"); got != 1 {
		t.Errorf("store queries = %d, want 1 (second read served from cache)", got)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("responses differ between store read and cache read:\nfirst  = %#v\nsecond = %#v", first, second)
	}
	if len(first) != 2 {
		t.Errorf("got %d frames, want 2", len(first))
	}
}

func TestGetWord_TTLExpiryTriggersRequery(t *testing.T) {
	fake := testutil.NewFakeStore()
	fake.SetWord("hello", `[[0.1,0.2]]`)
	backend := testutil.NewMockBackend()
	s := newTestService(t, fake, backend, func(cfg *Config) {
		cfg.TTL = 30 * time.Millisecond
	})
	ctx := context.Background()

	if _, err := s.GetWord(ctx, "hello", Options{}); err != nil {
		t.Fatalf("first GetWord() error = %v", err)
	}

	time.Sleep(80 * time.Millisecond)

	if _, err := s.GetWord(ctx, "hello", Options{}); err != nil {
		t.Fatalf("second GetWord() error = %v", err)
	}

	if got := fake.QueriesFor("hello"); got != 2 {
		t.Errorf("store queries = %d, want 2 (entry expired between reads)", got)
	}
}

func TestGetWord_FrameRequestBypassesCache(t *testing.T) {
	fake := testutil.NewFakeStore()
	fake.SetWord("hello", `[[0.1,0.2]]`, `[[0.3,0.4]]`, `[[0.5,0.6]]`)
	backend := testutil.NewMockBackend()
	s := newTestService(t, fake, backend)
	ctx := context.Background()

	// Populate the cache with the whole word first.
	if _, err := s.GetWord(ctx, "hello", Options{}); err != nil {
		t.Fatalf("whole-word GetWord() error = %v", err)
	}
	getsAfterFill := backend.GetCalls()
	setsAfterFill := backend.SetCalls()

	frames, err := s.GetWord(ctx, "hello", Options{Frame: intPtr(1)})
	if err != nil {
		t.Fatalf("frame GetWord() error = %v", err)
	}
	if len(frames) != 1 || frames[0].FrameNumber != 1 {
		t.Fatalf("frames = %+v, want single frame 1", frames)
	}

	if got := backend.GetCalls(); got != getsAfterFill {
		t.Errorf("cache lookups = %d, want %d (frame requests must not read the cache)", got, getsAfterFill)
	}
	if got := backend.SetCalls(); got != setsAfterFill {
		t.Errorf("cache writes = %d, want %d (frame requests must not write the cache)", got, setsAfterFill)
	}
	if got := fake.QueriesFor("hello"); got != 2 {
		t.Errorf("store queries = %d, want 2 (frame request reads through)", got)
	}
}

func TestGetWord_LimitRequestBypassesCache(t *testing.T) {
	fake := testutil.NewFakeStore()
	fake.SetWord("hello", `[[0.1,0.2]]`, `[[0.3,0.4]]`, `[[0.5,0.6]]`)
	backend := testutil.NewMockBackend()
	s := newTestService(t, fake, backend)
	ctx := context.Background()

	frames, err := s.GetWord(ctx, "hello", Options{Limit: 2})
	if err != nil {
		t.Fatalf("GetWord() error = %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}

	if got := backend.GetCalls(); got != 0 {
		t.Errorf("cache lookups = %d, want 0", got)
	}
	if got := backend.SetCalls(); got != 0 {
		t.Errorf("cache writes = %d, want 0 (partial results must never be cached)", got)
	}
}

func TestGetWord_Rounding(t *testing.T) {
	fake := testutil.NewFakeStore()
	fake.SetWord("hello", `[[0.123456789,0.5]]`)

	tests := []struct {
		name   string
		def    int
		opt    *int
		wantXY []any
	}{
		{
			name:   "service default",
			def:    4,
			opt:    nil,
			wantXY: []any{0.1235, 0.5},
		},
		{
			name:   "per-request override",
			def:    4,
			opt:    intPtr(2),
			wantXY: []any{0.12, 0.5},
		},
		{
			name:   "negative disables",
			def:    4,
			opt:    intPtr(-1),
			wantXY: []any{0.123456789, 0.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(t, fake, nil, func(cfg *Config) {
				cfg.RoundDecimals = tt.def
			})

			frames, err := s.GetWord(context.Background(), "hello", Options{RoundDecimals: tt.opt})
			if err != nil {
				t.Fatalf("GetWord() error = %v", err)
			}
			if len(frames) != 1 {
				t.Fatalf("got %d frames, want 1", len(frames))
			}

			want := []any{tt.wantXY}
			if !reflect.DeepEqual(frames[0].Keypoints, want) {
				t.Errorf("Keypoints = %v, want %v", frames[0].Keypoints, want)
			}
		})
	}
}

func TestGetWord_CacheHoldsUnroundedForm(t *testing.T) {
	fake := testutil.NewFakeStore()
	fake.SetWord("hello", `[[0.123456789,0.5]]`)
	backend := testutil.NewMockBackend()
	s := newTestService(t, fake, backend, func(cfg *Config) {
		cfg.RoundDecimals = 2
	})
	ctx := context.Background()

	// First read rounds the response and fills the cache.
	rounded, err := s.GetWord(ctx, "hello", Options{})
	if err != nil {
		t.Fatalf("first GetWord() error = %v", err)
	}
	if want := []any{[]any{0.12, 0.5}}; !reflect.DeepEqual(rounded[0].Keypoints, want) {
		t.Fatalf("rounded Keypoints = %v, want %v", rounded[0].Keypoints, want)
	}

	// Second read hits the cache; disabling rounding must recover the full
	// precision, proving the entry was stored pre-rounding.
	raw, err := s.GetWord(ctx, "hello", Options{RoundDecimals: intPtr(-1)})
	if err != nil {
		t.Fatalf("second GetWord() error = %v", err)
	}
	if got := fake.QueriesFor("hello"); got != 1 {
		t.Fatalf("store queries = %d, want 1 (second read must come from cache)", got)
	}
	if want := []any{[]any{0.123456789, 0.5}}; !reflect.DeepEqual(raw[0].Keypoints, want) {
		t.Errorf("cached Keypoints = %v, want full-precision %v", raw[0].Keypoints, want)
	}
}

func TestGetWord_MalformedRowDegradesToEmpty(t *testing.T) {
	fake := testutil.NewFakeStore()
	fake.SetWord("hello", `[[0.1,0.2]]`, `{not json`, `[[0.5,0.6]]`)
	s := newTestService(t, fake, nil)

	frames, err := s.GetWord(context.Background(), "hello", Options{})
	if err != nil {
		t.Fatalf("GetWord() error = %v, one bad row must not fail the word", err)
	}
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}

	if !reflect.DeepEqual(frames[1].Keypoints, []any{}) {
		t.Errorf("frames[1].Keypoints = %v, want empty payload for the bad row", frames[1].Keypoints)
	}
	if want := []any{[]any{0.1, 0.2}}; !reflect.DeepEqual(frames[0].Keypoints, want) {
		t.Errorf("frames[0].Keypoints = %v, want %v (siblings must decode)", frames[0].Keypoints, want)
	}
	if want := []any{[]any{0.5, 0.6}}; !reflect.DeepEqual(frames[2].Keypoints, want) {
		t.Errorf("frames[2].Keypoints = %v, want %v (siblings must decode)", frames[2].Keypoints, want)
	}
}

func TestGetWord_CacheFailuresFailOpen(t *testing.T) {
	fake := testutil.NewFakeStore()
	fake.SetWord("hello", `[[0.1,0.2]]`)
	backend := testutil.NewMockBackend()
	backend.FailGets(true)
	backend.FailSets(true)
	s := newTestService(t, fake, backend)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		frames, err := s.GetWord(ctx, "hello", Options{})
		if err != nil {
			t.Fatalf("GetWord() #%d error = %v, want success despite cache failures", i+1, err)
		}
		if len(frames) != 1 {
			t.Errorf("GetWord() #%d returned %d frames, want 1", i+1, len(frames))
		}
	}

	if got := fake.QueriesFor("hello"); got != 2 {
		t.Errorf("store queries = %d, want 2 (nothing could be cached)", got)
	}
}

func TestNew_ProbeFailureDisablesCacheForGood(t *testing.T) {
	fake := testutil.NewFakeStore()
	fake.SetWord("hello", `[[0.1,0.2]]`)
	backend := testutil.NewMockBackend()
	backend.FailPing(true)
	s := newTestService(t, fake, backend)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := s.GetWord(ctx, "hello", Options{}); err != nil {
			t.Fatalf("GetWord() #%d error = %v", i+1, err)
		}
	}

	if got := backend.GetCalls(); got != 0 {
		t.Errorf("cache lookups = %d, want 0 after failed probe", got)
	}
	if got := backend.SetCalls(); got != 0 {
		t.Errorf("cache writes = %d, want 0 after failed probe", got)
	}
	if got := fake.QueriesFor("hello"); got != 2 {
		t.Errorf("store queries = %d, want 2", got)
	}
}

func TestGetWord_StoreErrorsPropagate(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{
			name:     "connection error",
			err:      fmt.Errorf("%w: dial tcp: refused", store.ErrConnection),
			sentinel: store.ErrConnection,
		},
		{
			name:     "query error",
			err:      fmt.Errorf("%w: table gone", store.ErrQuery),
			sentinel: store.ErrQuery,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testutil.NewFakeStore()
			fake.FailWith(tt.err)
			s := newTestService(t, fake, testutil.NewMockBackend())

			_, err := s.GetWord(context.Background(), "hello", Options{})
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("error = %v, want %v to propagate", err, tt.sentinel)
			}
		})
	}
}

func TestGetWord_NilBackendServesFromStore(t *testing.T) {
	fake := testutil.NewFakeStore()
	fake.SetWord("hello", `[[0.1,0.2]]`)
	s := newTestService(t, fake, nil)

	frames, err := s.GetWord(context.Background(), "hello", Options{})
	if err != nil {
		t.Fatalf("GetWord() error = %v", err)
	}
	if len(frames) != 1 {
		t.Errorf("got %d frames, want 1", len(frames))
	}
}

func TestGetWord_ConcurrentMisses(t *testing.T) {
	const readers = 8

	run := func(t *testing.T, singleFlight bool) int {
		t.Helper()

		fake := testutil.NewFakeStore()
		fake.SetWord("hello", `[[0.1,0.2]]`, `[[0.3,0.4]]`)
		fake.SetDelay(50 * time.Millisecond)
		s := newTestService(t, fake, testutil.NewMockBackend(), func(cfg *Config) {
			cfg.SingleFlight = singleFlight
		})

		var wg sync.WaitGroup
		errCh := make(chan error, readers)
		for i := 0; i < readers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				frames, err := s.GetWord(context.Background(), "hello", Options{})
				if err == nil && len(frames) != 2 {
					err = fmt.Errorf("got %d frames, want 2", len(frames))
				}
				errCh <- err
			}()
		}
		wg.Wait()
		close(errCh)

		for err := range errCh {
			if err != nil {
				t.Fatalf("concurrent GetWord(): %v", err)
			}
		}
		return fake.QueriesFor("hello")
	}

	t.Run("independent misses", func(t *testing.T) {
		if got := run(t, false); got < 1 {
			t.Errorf("store queries = %d, want >= 1", got)
		}
	})

	t.Run("single flight", func(t *testing.T) {
		if got := run(t, true); got != 1 {
			t.Errorf("store queries = %d, want exactly 1 with single flight", got)
		}
	})
}

func TestGetWord_SingleFlightSurvivesCallerCancellation(t *testing.T) {
	fake := testutil.NewFakeStore()
	fake.SetWord("hello", `[[0.1,0.2]]`, `[[0.3,0.4]]`)
	fake.SetDelay(150 * time.Millisecond)
	s := newTestService(t, fake, testutil.NewMockBackend(), func(cfg *Config) {
		cfg.SingleFlight = true
	})

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := s.GetWord(leaderCtx, "hello", Options{})
		leaderErr <- err
	}()

	// Let the first lookup reach the store, pile a second one onto its
	// flight, then cancel the first. Only the cancelled caller may fail.
	time.Sleep(30 * time.Millisecond)
	followerErr := make(chan error, 1)
	go func() {
		frames, err := s.GetWord(context.Background(), "hello", Options{})
		if err == nil && len(frames) != 2 {
			err = fmt.Errorf("got %d frames, want 2", len(frames))
		}
		followerErr <- err
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller error = %v, want context.Canceled", err)
	}
	if err := <-followerErr; err != nil {
		t.Errorf("remaining caller error = %v, want complete result despite the cancellation", err)
	}
}

func TestGetWord_EmptyResultsAreNotCached(t *testing.T) {
	fake := testutil.NewFakeStore()
	backend := testutil.NewMockBackend()
	s := newTestService(t, fake, backend)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := s.GetWord(ctx, "missing", Options{}); err != nil {
			t.Fatalf("GetWord() #%d error = %v", i+1, err)
		}
	}

	if got := backend.SetCalls(); got != 0 {
		t.Errorf("cache writes = %d, want 0", got)
	}
	if got := fake.QueriesFor("missing"); got != 2 {
		t.Errorf("store queries = %d, want 2 (empty results read through every time)", got)
	}
}

func TestGetWord_WholeWordAfterFrameRequestStillCaches(t *testing.T) {
	fake := testutil.NewFakeStore()
	fake.SetWord("hello", `[[0.1,0.2]]`, `[[0.3,0.4]]`)
	backend := testutil.NewMockBackend()
	s := newTestService(t, fake, backend)
	ctx := context.Background()

	if _, err := s.GetWord(ctx, "hello", Options{Frame: intPtr(0)}); err != nil {
		t.Fatalf("frame GetWord() error = %v", err)
	}
	if _, err := s.GetWord(ctx, "hello", Options{}); err != nil {
		t.Fatalf("whole-word GetWord() error = %v", err)
	}

	// The frame request must not have poisoned the cache with a partial
	// result; the whole-word read fills it with all frames.
	frames, status := backend.Get(ctx, "hello")
	if status != cache.StatusHit {
		t.Fatalf("status = %v, want StatusHit after whole-word read", status)
	}
	if len(frames) != 2 {
		t.Errorf("cached frames = %d, want 2", len(frames))
	}
}
