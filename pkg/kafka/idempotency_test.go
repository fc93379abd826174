package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a manually advanced time source.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func storeWithClock(ttl time.Duration) (*MemoryIdempotencyStore, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	s := NewMemoryIdempotencyStore(ttl)
	s.now = clock.now
	return s, clock
}

func contains(t *testing.T, s IdempotencyStore, id string) bool {
	t.Helper()
	ok, err := s.Contains(context.Background(), id)
	require.NoError(t, err)
	return ok
}

// --- MemoryIdempotencyStore ---

func TestMemoryIdempotencyStore_Expiry(t *testing.T) {
	s, clock := storeWithClock(time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "product.updated-1"))
	assert.True(t, contains(t, s, "product.updated-1"))
	assert.False(t, contains(t, s, "product.updated-2"))

	clock.advance(time.Hour)
	assert.True(t, contains(t, s, "product.updated-1"), "exactly ttl old is still fresh")

	clock.advance(time.Second)
	assert.False(t, contains(t, s, "product.updated-1"))
	assert.Zero(t, s.Len(), "expired entry dropped on lookup")
}

func TestMemoryIdempotencyStore_ReAddRefreshesAge(t *testing.T) {
	s, clock := storeWithClock(10 * time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "a"))
	clock.advance(8 * time.Minute)
	require.NoError(t, s.Add(ctx, "b"))
	require.NoError(t, s.Add(ctx, "a"))
	clock.advance(5 * time.Minute)

	assert.Equal(t, 0, s.Sweep())
	assert.True(t, contains(t, s, "a"))
	assert.Equal(t, 2, s.Len())
}

func TestMemoryIdempotencyStore_SweepStopsAtFirstFresh(t *testing.T) {
	s, clock := storeWithClock(time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Add(ctx, fmt.Sprintf("old-%d", i)))
	}
	clock.advance(2 * time.Minute)
	require.NoError(t, s.Add(ctx, "fresh"))

	assert.Equal(t, 5, s.Sweep())
	assert.Equal(t, 1, s.Len())
	assert.True(t, contains(t, s, "fresh"))
}

func TestMemoryIdempotencyStore_CapacityEvictsOldest(t *testing.T) {
	s, clock := storeWithClock(time.Hour)
	s.WithCapacity(3)
	ctx := context.Background()

	for _, id := range []string{"e1", "e2", "e3", "e4"} {
		require.NoError(t, s.Add(ctx, id))
		clock.advance(time.Second)
	}

	assert.Equal(t, 3, s.Len())
	assert.False(t, contains(t, s, "e1"))
	for _, id := range []string{"e2", "e3", "e4"} {
		assert.True(t, contains(t, s, id), id)
	}
}

func TestMemoryIdempotencyStore_CapacityPrefersExpired(t *testing.T) {
	s, clock := storeWithClock(time.Minute)
	s.WithCapacity(2)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "stale"))
	clock.advance(2 * time.Minute)
	require.NoError(t, s.Add(ctx, "x"))
	require.NoError(t, s.Add(ctx, "y"))

	assert.Equal(t, 2, s.Len())
	assert.True(t, contains(t, s, "x"))
	assert.True(t, contains(t, s, "y"))
}

func TestMemoryIdempotencyStore_Concurrent(t *testing.T) {
	s := NewMemoryIdempotencyStore(time.Hour).WithCapacity(500)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				_ = s.Add(ctx, id)
				_, _ = s.Contains(ctx, id)
				if i%50 == 0 {
					s.Sweep()
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 500, s.Len())
}

func TestMemoryIdempotencyStore_RunSweeperStops(t *testing.T) {
	s := NewMemoryIdempotencyStore(time.Nanosecond)
	require.NoError(t, s.Add(context.Background(), "gone"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunSweeper(ctx, time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

// --- IdempotentHandler ---

type countingHandler struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func (h *countingHandler) handle(_ context.Context, e *Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.calls == nil {
		h.calls = make(map[string]int)
	}
	h.calls[e.EventID]++
	return h.err
}

type brokenStore struct{ added int }

func (s *brokenStore) Contains(context.Context, string) (bool, error) {
	return false, errors.New("store offline")
}

func (s *brokenStore) Add(context.Context, string) error {
	s.added++
	return errors.New("store offline")
}

func TestIdempotentHandler(t *testing.T) {
	tests := []struct {
		name       string
		ids        []string
		handlerErr error
		store      func() IdempotencyStore
		wantCalls  map[string]int
	}{
		{
			name:      "redelivery applied once",
			ids:       []string{"e1", "e1", "e2", "e1"},
			store:     func() IdempotencyStore { return NewMemoryIdempotencyStore(time.Hour) },
			wantCalls: map[string]int{"e1": 1, "e2": 1},
		},
		{
			name:      "events without id always run",
			ids:       []string{"", ""},
			store:     func() IdempotencyStore { return NewMemoryIdempotencyStore(time.Hour) },
			wantCalls: map[string]int{"": 2},
		},
		{
			name:       "failures are retried, not remembered",
			ids:        []string{"e1", "e1", "e1"},
			handlerErr: errors.New("unknown product"),
			store:      func() IdempotencyStore { return NewMemoryIdempotencyStore(time.Hour) },
			wantCalls:  map[string]int{"e1": 3},
		},
		{
			name:      "broken store falls back to handling",
			ids:       []string{"e1", "e1"},
			store:     func() IdempotencyStore { return &brokenStore{} },
			wantCalls: map[string]int{"e1": 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &countingHandler{err: tt.handlerErr}
			h := IdempotentHandler(tt.store(), inner.handle, testLogger())

			for _, id := range tt.ids {
				err := h(context.Background(), &Event{EventID: id, EventType: "product.updated"})
				if tt.handlerErr != nil {
					assert.ErrorIs(t, err, tt.handlerErr)
				} else {
					assert.NoError(t, err)
				}
			}
			assert.Equal(t, tt.wantCalls, inner.calls)
		})
	}
}

func TestIdempotentHandler_CountsDuplicates(t *testing.T) {
	topic, group := "ecommerce.relation.created", "dup-"+t.Name()
	ctx := withMessageLabels(context.Background(), topic, group)
	h := IdempotentHandler(NewMemoryIdempotencyStore(time.Hour), func(context.Context, *Event) error { return nil }, testLogger())

	evt := &Event{EventID: "rel-1", EventType: "relation.created"}
	for i := 0; i < 3; i++ {
		require.NoError(t, h(ctx, evt))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(ConsumerMessagesDuplicate.WithLabelValues(topic, group)))
}
