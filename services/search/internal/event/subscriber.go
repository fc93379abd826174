package event

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	pkgkafka "github.com/barbmarcio/megastore-search/pkg/kafka"
)

// SubscriberConfig configures the catalog event subscription.
type SubscriberConfig struct {
	Brokers        []string
	GroupID        string
	MaxRetries     int
	RetryBackoff   time.Duration
	DLQEnabled     bool
	IdempotencyTTL time.Duration

	// IdempotencyCapacity bounds how many handled event IDs are remembered.
	IdempotencyCapacity int
}

// runner is the part of pkgkafka.Consumer the subscriber drives.
type runner interface {
	Start(ctx context.Context) error
	Close() error
	Topic() string
}

// Subscriber runs one deduplicating consumer per catalog topic.
type Subscriber struct {
	consumers []runner
	store     *pkgkafka.MemoryIdempotencyStore
	dlq       *pkgkafka.DLQProducer
	logger    *slog.Logger
}

// NewSubscriber creates consumers for every topic in Topics. All of them
// share one idempotency store so a redelivered event is applied once.
func NewSubscriber(cfg SubscriberConfig, consumer *Consumer, logger *slog.Logger) *Subscriber {
	ttl := cfg.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	s := &Subscriber{
		store:  pkgkafka.NewMemoryIdempotencyStore(ttl).WithCapacity(cfg.IdempotencyCapacity),
		logger: logger,
	}
	if cfg.DLQEnabled {
		s.dlq = pkgkafka.NewDLQProducer(cfg.Brokers, logger)
	}

	handler := pkgkafka.IdempotentHandler(s.store, consumer.Handle, logger)
	for _, topic := range Topics() {
		c := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:      cfg.Brokers,
			GroupID:      cfg.GroupID,
			Topic:        topic,
			MinBytes:     1,
			MaxBytes:     10 << 20,
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
		}, handler, logger)
		if s.dlq != nil {
			c.WithDeadLetter(s.dlq)
		}
		s.consumers = append(s.consumers, c)
	}
	return s
}

// Start runs every consumer and the idempotency sweeper until ctx is
// canceled. The first consumer error cancels the others.
func (s *Subscriber) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.store.RunSweeper(gctx, time.Minute)
		return nil
	})
	for _, c := range s.consumers {
		g.Go(func() error {
			return c.Start(gctx)
		})
	}
	return g.Wait()
}

// Topics returns the topics with a running consumer.
func (s *Subscriber) Topics() []string {
	out := make([]string, len(s.consumers))
	for i, c := range s.consumers {
		out[i] = c.Topic()
	}
	return out
}

// Close closes every consumer and the dead-letter producer.
func (s *Subscriber) Close() error {
	var errs []error
	for _, c := range s.consumers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.dlq != nil {
		if err := s.dlq.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
