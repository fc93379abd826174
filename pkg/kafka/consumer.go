package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/barbmarcio/megastore-search/pkg/logger"
)

const tracerName = "github.com/barbmarcio/megastore-search/pkg/kafka"

// Handler is a function that processes a Kafka event.
type Handler func(ctx context.Context, event *Event) error

// messageReader is the subset of *kafka.Reader the consumer loop needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DeadLetterPublisher receives messages whose handler failed every attempt.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, msg kafka.Message, lastErr error, consumerGroup string) error
}

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topic    string
	MinBytes int
	MaxBytes int

	// MaxRetries is how many times the handler runs before a message is
	// treated as poison. Zero means 3.
	MaxRetries int
	// RetryBackoff is the base delay between attempts; attempt n waits n×base.
	// Zero means 100ms.
	RetryBackoff time.Duration
}

// Consumer reads one topic, decodes event envelopes and feeds them to a
// handler with bounded retries. Poison messages are committed, and forwarded
// to a dead-letter publisher when one is configured.
type Consumer struct {
	reader     messageReader
	topic      string
	group      string
	logger     *slog.Logger
	handler    Handler
	dlq        DeadLetterPublisher
	maxRetries int
	backoff    time.Duration
	tracer     trace.Tracer
	closeOnce  sync.Once
}

// NewConsumer creates a new Kafka consumer for a specific topic and group.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
	return newConsumer(r, cfg, handler, logger)
}

func newConsumer(r messageReader, cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	c := &Consumer{
		reader:     r,
		topic:      cfg.Topic,
		group:      cfg.GroupID,
		logger:     logger,
		handler:    handler,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
		tracer:     otel.Tracer(tracerName),
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 3
	}
	if c.backoff <= 0 {
		c.backoff = 100 * time.Millisecond
	}
	return c
}

// WithDeadLetter routes poison messages to p instead of dropping them.
func (c *Consumer) WithDeadLetter(p DeadLetterPublisher) *Consumer {
	c.dlq = p
	return c
}

// Topic returns the consumed topic.
func (c *Consumer) Topic() string { return c.topic }

// Start begins consuming messages. It blocks until the context is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started",
		slog.String("topic", c.topic),
		slog.String("group", c.group),
	)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", slog.String("topic", c.topic))
				return nil
			}
			c.logger.Error("failed to fetch message", slog.String("error", err.Error()))
			continue
		}
		if stop := c.process(ctx, msg); stop {
			return nil
		}
	}
}

// process handles one message and commits it. It reports true when the
// context was canceled mid-retry and the loop should stop without committing.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	ConsumerMessagesReceived.WithLabelValues(c.topic, c.group).Inc()

	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to unmarshal event",
			slog.String("error", err.Error()),
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
		)
		ConsumerMessagesFailed.WithLabelValues(c.topic, c.group).Inc()
		c.deadLetter(ctx, msg, err)
		c.commit(ctx, msg)
		return false
	}

	observeLag(c.topic, c.group, event.Timestamp, time.Now())
	ctx = ExtractTraceContext(ctx, &msg)
	ctx, span := c.tracer.Start(ctx, "kafka.consume "+c.topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", c.topic),
			attribute.String("messaging.kafka.consumer.group", c.group),
			attribute.String("event.type", event.EventType),
			attribute.String("event.id", event.EventID),
		),
	)
	defer span.End()

	ctx = withMessageLabels(ctx, c.topic, c.group)
	ctx = logger.WithOrigin(ctx, logger.OriginEvent)
	if event.CorrelationID != "" {
		ctx = logger.WithCorrelationID(ctx, event.CorrelationID)
	}
	log := logger.WithContext(ctx, c.logger)

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		lastErr = c.handler(ctx, event)
		if lastErr == nil {
			break
		}
		log.Warn("handler failed, will retry",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.String("error", lastErr.Error()),
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", c.maxRetries),
		)
		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				span.SetStatus(codes.Error, "canceled during retry")
				return true
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
		}
	}
	ConsumerProcessingDuration.WithLabelValues(c.topic, c.group).Observe(time.Since(start).Seconds())

	if lastErr != nil {
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, lastErr.Error())
		ConsumerMessagesFailed.WithLabelValues(c.topic, c.group).Inc()
		log.Error("handler failed after all retries, skipping poison message",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.String("error", lastErr.Error()),
			slog.Int64("offset", msg.Offset),
		)
		c.deadLetter(ctx, msg, lastErr)
	} else {
		ConsumerMessagesProcessed.WithLabelValues(c.topic, c.group).Inc()
	}
	c.commit(ctx, msg)
	return false
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) {
	if c.dlq == nil {
		return
	}
	if err := c.dlq.Publish(ctx, msg, cause, c.group); err != nil {
		c.logger.Error("dead letter publish failed", slog.String("error", err.Error()))
		return
	}
	ConsumerDLQPublished.WithLabelValues(c.topic, c.group).Inc()
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("failed to commit message",
			slog.String("error", err.Error()),
			slog.Int64("offset", msg.Offset),
		)
	}
}

// Close closes the consumer. It is safe to call multiple times.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
	})
	return err
}

// TopicPrefix is the namespace shared by catalog topics.
const TopicPrefix = "ecommerce"

// Topic constructs a fully-qualified topic name.
func Topic(domain, action string) string {
	return fmt.Sprintf("%s.%s.%s", TopicPrefix, domain, action)
}

type labelsKey struct{}

type messageLabels struct{ topic, group string }

func withMessageLabels(ctx context.Context, topic, group string) context.Context {
	return context.WithValue(ctx, labelsKey{}, messageLabels{topic: topic, group: group})
}

func labelsFromContext(ctx context.Context) messageLabels {
	if l, ok := ctx.Value(labelsKey{}).(messageLabels); ok {
		return l
	}
	return messageLabels{topic: "unknown", group: "unknown"}
}
