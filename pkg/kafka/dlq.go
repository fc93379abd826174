package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// DLQTopicPrefix is the prefix for dead-letter queue topics.
const DLQTopicPrefix = "ecommerce.dlq"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DLQProducer publishes poison messages to a dead-letter topic derived from
// the source topic.
type DLQProducer struct {
	writer messageWriter
	logger *slog.Logger
}

var _ DeadLetterPublisher = (*DLQProducer)(nil)

// NewDLQProducer creates a DLQ producer writing synchronously to brokers.
func NewDLQProducer(brokers []string, logger *slog.Logger) *DLQProducer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              1,
		BatchTimeout:           100 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &DLQProducer{writer: w, logger: logger}
}

// DLQTopic constructs the DLQ topic name for a given source topic.
func DLQTopic(originalTopic string) string {
	return fmt.Sprintf("%s.%s", DLQTopicPrefix, originalTopic)
}

// DeadLetterMessage builds the message written to the DLQ. Original headers
// are kept and the source coordinates plus the failure are appended.
func DeadLetterMessage(originalMsg kafka.Message, lastErr error, consumerGroup string) kafka.Message {
	headers := make([]kafka.Header, 0, len(originalMsg.Headers)+5)
	headers = append(headers, originalMsg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "dlq.original_topic", Value: []byte(originalMsg.Topic)},
		kafka.Header{Key: "dlq.original_partition", Value: []byte(strconv.Itoa(originalMsg.Partition))},
		kafka.Header{Key: "dlq.original_offset", Value: []byte(strconv.FormatInt(originalMsg.Offset, 10))},
		kafka.Header{Key: "dlq.consumer_group", Value: []byte(consumerGroup)},
	)
	if lastErr != nil {
		headers = append(headers, kafka.Header{Key: "dlq.error", Value: []byte(lastErr.Error())})
	}

	return kafka.Message{
		Topic:   DLQTopic(originalMsg.Topic),
		Key:     originalMsg.Key,
		Value:   originalMsg.Value,
		Headers: headers,
	}
}

// Publish sends a failed message to its DLQ topic. The dead letter carries
// the trace of the consumer span that gave up on it.
func (d *DLQProducer) Publish(ctx context.Context, originalMsg kafka.Message, lastErr error, consumerGroup string) error {
	dlqMsg := DeadLetterMessage(originalMsg, lastErr, consumerGroup)
	InjectTraceContext(ctx, &dlqMsg)

	if err := d.writer.WriteMessages(ctx, dlqMsg); err != nil {
		d.logger.Error("failed to publish message to DLQ",
			slog.String("dlq_topic", dlqMsg.Topic),
			slog.String("original_topic", originalMsg.Topic),
			slog.Int64("offset", originalMsg.Offset),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("publish to DLQ %s: %w", dlqMsg.Topic, err)
	}

	d.logger.Warn("message sent to DLQ",
		slog.String("dlq_topic", dlqMsg.Topic),
		slog.String("original_topic", originalMsg.Topic),
		slog.Int64("offset", originalMsg.Offset),
		slog.String("consumer_group", consumerGroup),
	)
	return nil
}

// Close closes the DLQ producer.
func (d *DLQProducer) Close() error {
	return d.writer.Close()
}
