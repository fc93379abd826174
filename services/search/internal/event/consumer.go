package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/barbmarcio/megastore-search/pkg/errors"
	pkgkafka "github.com/barbmarcio/megastore-search/pkg/kafka"
	"github.com/barbmarcio/megastore-search/pkg/logger"
	"github.com/barbmarcio/megastore-search/services/search/internal/domain"
	"github.com/barbmarcio/megastore-search/services/search/internal/service"
)

// Event types carried in the envelope of catalog events.
const (
	EventProductCreated  = "product.created"
	EventProductUpdated  = "product.updated"
	EventProductDeleted  = "product.deleted"
	EventRelationCreated = "product.relation.created"
)

// Kafka topics consumed by the search service.
var (
	TopicProductCreated  = pkgkafka.Topic("product", "created")
	TopicProductUpdated  = pkgkafka.Topic("product", "updated")
	TopicProductDeleted  = pkgkafka.Topic("product", "deleted")
	TopicRelationCreated = pkgkafka.Topic("product.relation", "created")
)

// Topics lists every topic the search service subscribes to.
func Topics() []string {
	return []string{TopicProductCreated, TopicProductUpdated, TopicProductDeleted, TopicRelationCreated}
}

// ProductDeletedData is the payload of a product.deleted event.
type ProductDeletedData struct {
	ID uint64 `json:"id"`
}

// Indexer is the part of the search service driven by catalog events.
type Indexer interface {
	IndexProduct(ctx context.Context, in service.IndexProductInput) (domain.Product, error)
	DeleteProduct(ctx context.Context, id uint64) error
	AddRelation(ctx context.Context, in service.AddRelationInput) (domain.Relation, error)
}

// Consumer applies catalog events to the search index.
type Consumer struct {
	indexer Indexer
	logger  *slog.Logger
}

// NewConsumer creates a new event consumer for the search service.
func NewConsumer(indexer Indexer, logger *slog.Logger) *Consumer {
	return &Consumer{
		indexer: indexer,
		logger:  logger,
	}
}

// Handle processes a Kafka event based on its type. Unknown types are
// acknowledged and ignored.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case EventProductCreated, EventProductUpdated:
		return c.handleProductUpsert(ctx, event)
	case EventProductDeleted:
		return c.handleProductDeleted(ctx, event)
	case EventRelationCreated:
		return c.handleRelationCreated(ctx, event)
	default:
		c.log(ctx).WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

// handleProductUpsert indexes a created or updated product.
func (c *Consumer) handleProductUpsert(ctx context.Context, event *pkgkafka.Event) error {
	var in service.IndexProductInput
	if err := event.UnmarshalData(&in); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", event.EventType, err)
	}

	if _, err := c.indexer.IndexProduct(ctx, in); err != nil {
		return fmt.Errorf("index product from %s event: %w", event.EventType, err)
	}

	c.log(ctx).InfoContext(ctx, "indexed product from event",
		slog.String("event_type", event.EventType),
		slog.Uint64("product_id", in.ID),
	)
	return nil
}

// handleProductDeleted removes a deleted product. A product that is already
// gone counts as handled.
func (c *Consumer) handleProductDeleted(ctx context.Context, event *pkgkafka.Event) error {
	var data ProductDeletedData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal product.deleted data: %w", err)
	}

	err := c.indexer.DeleteProduct(ctx, data.ID)
	if errors.Is(err, apperrors.ErrNotFound) {
		c.log(ctx).DebugContext(ctx, "deleted product was not indexed",
			slog.Uint64("product_id", data.ID),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete product from deleted event: %w", err)
	}

	c.log(ctx).InfoContext(ctx, "deleted product from deleted event",
		slog.Uint64("product_id", data.ID),
	)
	return nil
}

// handleRelationCreated links two products. Unknown products fail the event
// so the consumer retries it; the product may arrive on another topic first.
func (c *Consumer) handleRelationCreated(ctx context.Context, event *pkgkafka.Event) error {
	var in service.AddRelationInput
	if err := event.UnmarshalData(&in); err != nil {
		return fmt.Errorf("unmarshal product.relation.created data: %w", err)
	}

	rel, err := c.indexer.AddRelation(ctx, in)
	if err != nil {
		return fmt.Errorf("add relation from event: %w", err)
	}

	c.log(ctx).InfoContext(ctx, "added relation from event",
		slog.Uint64("source", rel.Source),
		slog.Uint64("target", rel.Target),
		slog.String("kind", rel.Kind.String()),
	)
	return nil
}

func (c *Consumer) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, c.logger)
}
