package kafka

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"
)

// IdempotencyStore records processed event IDs. Implementations must be safe
// for concurrent use.
type IdempotencyStore interface {
	Contains(ctx context.Context, eventID string) (bool, error)
	// Add is called only after the event was handled successfully.
	Add(ctx context.Context, eventID string) error
}

type seenEvent struct {
	id string
	at time.Time
}

// MemoryIdempotencyStore remembers event IDs for ttl, keeping at most
// capacity of them. Entries are kept in the order they were recorded, so
// expiry and eviction both work from the oldest end.
type MemoryIdempotencyStore struct {
	mu       sync.Mutex
	byID     map[string]*list.Element
	order    *list.List
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

// NewMemoryIdempotencyStore creates an unbounded store with the given TTL.
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		byID:  make(map[string]*list.Element),
		order: list.New(),
		ttl:   ttl,
		now:   time.Now,
	}
}

// WithCapacity bounds the store to n IDs; recording one more forgets the
// oldest. n <= 0 means unbounded.
func (s *MemoryIdempotencyStore) WithCapacity(n int) *MemoryIdempotencyStore {
	s.mu.Lock()
	s.capacity = n
	s.mu.Unlock()
	return s
}

func (s *MemoryIdempotencyStore) Contains(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.byID[eventID]
	if !ok {
		return false, nil
	}
	if s.expired(el.Value.(seenEvent), s.now()) {
		s.remove(el)
		return false, nil
	}
	return true, nil
}

// Add records eventID as processed now. Re-adding refreshes its age.
func (s *MemoryIdempotencyStore) Add(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if el, ok := s.byID[eventID]; ok {
		s.remove(el)
	}
	s.byID[eventID] = s.order.PushBack(seenEvent{id: eventID, at: now})

	if s.capacity > 0 && s.order.Len() > s.capacity {
		s.sweepLocked(now)
		for s.order.Len() > s.capacity {
			s.remove(s.order.Front())
		}
	}
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (s *MemoryIdempotencyStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now())
}

func (s *MemoryIdempotencyStore) sweepLocked(now time.Time) int {
	removed := 0
	for el := s.order.Front(); el != nil && s.expired(el.Value.(seenEvent), now); el = s.order.Front() {
		s.remove(el)
		removed++
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is canceled.
func (s *MemoryIdempotencyStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Len counts stored IDs, expired ones not yet swept included.
func (s *MemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *MemoryIdempotencyStore) expired(e seenEvent, now time.Time) bool {
	return now.Sub(e.at) > s.ttl
}

func (s *MemoryIdempotencyStore) remove(el *list.Element) {
	s.order.Remove(el)
	delete(s.byID, el.Value.(seenEvent).id)
}

// IdempotentHandler skips events whose ID was already handled successfully.
// Events without an ID always run, and so does everything when the store
// cannot be read.
func IdempotentHandler(store IdempotencyStore, inner Handler, logger *slog.Logger) Handler {
	return func(ctx context.Context, event *Event) error {
		if event.EventID == "" {
			return inner(ctx, event)
		}

		seen, err := store.Contains(ctx, event.EventID)
		switch {
		case err != nil:
			logger.Warn("idempotency lookup failed, handling event anyway",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
		case seen:
			labels := labelsFromContext(ctx)
			ConsumerMessagesDuplicate.WithLabelValues(labels.topic, labels.group).Inc()
			logger.Debug("duplicate event skipped",
				slog.String("event_id", event.EventID),
				slog.String("event_type", event.EventType),
				slog.String("aggregate_id", event.AggregateID),
			)
			return nil
		}

		if err := inner(ctx, event); err != nil {
			return err
		}
		if err := store.Add(ctx, event.EventID); err != nil {
			logger.Warn("could not record handled event",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
}
