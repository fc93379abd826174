package service

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/barbmarcio/megastore-search/pkg/errors"
	"github.com/barbmarcio/megastore-search/pkg/httpclient"
	"github.com/barbmarcio/megastore-search/pkg/logger"
	"github.com/barbmarcio/megastore-search/pkg/pagination"
	"github.com/barbmarcio/megastore-search/pkg/tracing"
	"github.com/barbmarcio/megastore-search/pkg/validator"
	"github.com/barbmarcio/megastore-search/services/search/internal/domain"
	"github.com/barbmarcio/megastore-search/services/search/internal/engine"
)

const (
	// DefaultLimit is the result count used when a caller does not ask for one.
	DefaultLimit = 20
	// MaxLimit caps the number of results a single query returns.
	MaxLimit = 100
)

// SearchService implements the business logic around the search engine:
// input validation, logging, tracing and metrics.
type SearchService struct {
	engine      *engine.Engine
	logger      *slog.Logger
	tracer      trace.Tracer
	catalog     httpclient.Doer
	catalogURL  string
	bulkWorkers int
}

// Option configures a SearchService.
type Option func(*SearchService)

// WithCatalog sets the product catalog used by Reindex. baseURL is the
// catalog service root, e.g. http://product-service:8001.
func WithCatalog(d httpclient.Doer, baseURL string) Option {
	return func(s *SearchService) {
		s.catalog = d
		s.catalogURL = strings.TrimRight(baseURL, "/")
	}
}

// WithBulkWorkers bounds the number of goroutines preparing a bulk load.
func WithBulkWorkers(n int) Option {
	return func(s *SearchService) {
		if n > 0 {
			s.bulkWorkers = n
		}
	}
}

// NewSearchService creates a new search service.
func NewSearchService(eng *engine.Engine, logger *slog.Logger, opts ...Option) *SearchService {
	s := &SearchService{
		engine:      eng,
		logger:      logger,
		tracer:      tracing.Tracer("github.com/barbmarcio/megastore-search/services/search/internal/service"),
		bulkWorkers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.refreshGauges()
	return s
}

// IndexProductInput holds the parameters for indexing a product.
type IndexProductInput struct {
	ID          uint64   `json:"id" validate:"required"`
	Name        string   `json:"name" validate:"required,max=256"`
	Description string   `json:"description" validate:"max=4096"`
	Brand       string   `json:"brand" validate:"max=128"`
	Category    string   `json:"category" validate:"required"`
	Price       float64  `json:"price" validate:"gte=0"`
	Rating      float64  `json:"rating" validate:"gte=0,lte=5"`
	Stock       uint32   `json:"stock"`
	Tags        []string `json:"tags" validate:"max=32,dive,required,max=64"`
}

// toProduct validates the input and builds the domain product. Names are
// trimmed and repeated tags collapsed.
func (in IndexProductInput) toProduct() (domain.Product, error) {
	if err := validator.Validate(in); err != nil {
		return domain.Product{}, err
	}
	category, err := domain.ParseCategory(in.Category)
	if err != nil {
		return domain.Product{}, err
	}

	p := domain.NewProduct(in.ID, strings.TrimSpace(in.Name), in.Description,
		strings.TrimSpace(in.Brand), category, in.Price)
	p.Rating = in.Rating
	p.Stock = in.Stock
	for _, t := range in.Tags {
		p.AddTag(strings.TrimSpace(t))
	}
	if err := p.Validate(); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

// AddRelationInput holds the parameters for linking two products.
type AddRelationInput struct {
	Source uint64  `json:"source" validate:"required"`
	Target uint64  `json:"target" validate:"required"`
	Kind   string  `json:"kind" validate:"required"`
	Weight float64 `json:"weight"`
}

// SearchRequest is a hybrid query: optional text, filters and optional
// recommendation expansion.
type SearchRequest struct {
	Query     *string
	Filters   domain.SearchFilters
	Recommend bool
	Limit     int
}

// IndexProduct validates and stores a single product, overwriting any
// product with the same ID.
func (s *SearchService) IndexProduct(ctx context.Context, in IndexProductInput) (domain.Product, error) {
	var p domain.Product
	err := s.observe(ctx, "index_product", func(ctx context.Context) error {
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int64("product.id", int64(in.ID)))

		var err error
		if p, err = in.toProduct(); err != nil {
			return apperrors.Wrap(err, "index product")
		}
		if err := s.engine.AddProduct(p); err != nil {
			return apperrors.Wrap(err, "index product")
		}
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.refreshGauges()
	s.log(ctx).InfoContext(ctx, "product indexed",
		slog.Uint64("product_id", p.ID),
		slog.String("name", p.Name),
	)
	return p, nil
}

// DeleteProduct removes a product and every relation touching it.
func (s *SearchService) DeleteProduct(ctx context.Context, id uint64) error {
	err := s.observe(ctx, "delete_product", func(ctx context.Context) error {
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int64("product.id", int64(id)))
		if err := s.engine.RemoveProduct(id); err != nil {
			return apperrors.Wrap(err, "delete product")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.refreshGauges()
	s.log(ctx).InfoContext(ctx, "product deleted from index",
		slog.Uint64("product_id", id),
	)
	return nil
}

// AddRelation links two indexed products with a weighted edge.
func (s *SearchService) AddRelation(ctx context.Context, in AddRelationInput) (domain.Relation, error) {
	var rel domain.Relation
	err := s.observe(ctx, "add_relation", func(ctx context.Context) error {
		if err := validator.Validate(in); err != nil {
			return apperrors.Wrap(err, "add relation")
		}
		kind, err := domain.ParseRelationKind(in.Kind)
		if err != nil {
			return apperrors.Wrap(err, "add relation")
		}
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.Int64("relation.source", int64(in.Source)),
			attribute.Int64("relation.target", int64(in.Target)),
			attribute.String("relation.kind", kind.String()),
		)
		if err := s.engine.AddRelation(in.Source, in.Target, kind, in.Weight); err != nil {
			return apperrors.Wrap(err, "add relation")
		}
		rel = domain.Relation{Source: in.Source, Target: in.Target, Kind: kind, Weight: in.Weight}
		return nil
	})
	if err != nil {
		return domain.Relation{}, err
	}

	s.refreshGauges()
	s.log(ctx).InfoContext(ctx, "relation added",
		slog.Uint64("source", rel.Source),
		slog.Uint64("target", rel.Target),
		slog.String("kind", rel.Kind.String()),
		slog.Float64("weight", rel.Weight),
	)
	return rel, nil
}

// GetProduct returns a stored product.
func (s *SearchService) GetProduct(ctx context.Context, id uint64) (domain.Product, error) {
	var p domain.Product
	err := s.observe(ctx, "get_product", func(context.Context) error {
		var err error
		p, err = s.engine.Get(id)
		return err
	})
	return p, err
}

// ListProducts returns one page of the indexed products in insertion order.
func (s *SearchService) ListProducts(ctx context.Context, params pagination.Params) pagination.Result[domain.Product] {
	var page pagination.Result[domain.Product]
	_ = s.observe(ctx, "list_products", func(context.Context) error {
		all := s.engine.Products()
		start, end := params.Window(len(all))
		page = pagination.NewResult(all[start:end], len(all), params)
		return nil
	})
	return page
}

// Search runs a hybrid query and returns at most req.Limit results.
// A blank query is treated as absent.
func (s *SearchService) Search(ctx context.Context, req SearchRequest) []domain.SearchResult {
	if req.Query != nil && strings.TrimSpace(*req.Query) == "" {
		req.Query = nil
	}

	var results []domain.SearchResult
	_ = s.observe(ctx, "search", func(ctx context.Context) error {
		span := trace.SpanFromContext(ctx)
		if req.Query != nil {
			span.SetAttributes(attribute.String("search.query", *req.Query))
		}
		span.SetAttributes(
			attribute.Bool("search.recommend", req.Recommend),
			attribute.Bool("search.filtered", !req.Filters.IsEmpty()),
		)
		results = limitResults(s.engine.HybridSearch(req.Query, req.Filters, req.Recommend), req.Limit)
		span.SetAttributes(attribute.Int("search.results", len(results)))
		return nil
	})
	SearchResults.WithLabelValues("search").Observe(float64(len(results)))

	query := ""
	if req.Query != nil {
		query = *req.Query
	}
	s.log(ctx).DebugContext(ctx, "search executed",
		slog.String("query", query),
		slog.Bool("recommend", req.Recommend),
		slog.Int("results", len(results)),
	)
	return results
}

// SimilarProducts returns products linked to id by a similar relation.
func (s *SearchService) SimilarProducts(ctx context.Context, id uint64, limit int) ([]domain.SearchResult, error) {
	return s.neighbors(ctx, "similar", id, limit, s.engine.SearchSimilarProducts)
}

// BoughtTogether returns products frequently bought together with id.
func (s *SearchService) BoughtTogether(ctx context.Context, id uint64, limit int) ([]domain.SearchResult, error) {
	return s.neighbors(ctx, "bought_together", id, limit, s.engine.FrequentlyBoughtTogether)
}

// Recommendations returns graph recommendations for id.
func (s *SearchService) Recommendations(ctx context.Context, id uint64, limit int) ([]domain.SearchResult, error) {
	return s.neighbors(ctx, "recommendations", id, limit, func(id uint64) ([]domain.SearchResult, error) {
		return s.engine.RecommendationsForProduct(id, min(limit, MaxLimit))
	})
}

func (s *SearchService) neighbors(ctx context.Context, op string, id uint64, limit int,
	fn func(uint64) ([]domain.SearchResult, error)) ([]domain.SearchResult, error) {
	var results []domain.SearchResult
	err := s.observe(ctx, op, func(ctx context.Context) error {
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int64("product.id", int64(id)))
		found, err := fn(id)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		results = limitResults(found, limit)
		return nil
	})
	if err != nil {
		return nil, err
	}
	SearchResults.WithLabelValues(op).Observe(float64(len(results)))
	return results, nil
}

// Stats reports the size of the index and the graph.
func (s *SearchService) Stats(context.Context) domain.Stats {
	return s.engine.Stats()
}

// Ready reports whether the engine's structures are mutually consistent.
func (s *SearchService) Ready(ctx context.Context) error {
	if err := s.engine.CheckConsistency(); err != nil {
		return apperrors.Internal(err)
	}
	return ctx.Err()
}

// observe wraps fn in a span and records its latency and outcome.
func (s *SearchService) observe(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "SearchService."+op)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
		tracing.RecordError(span, err)
	}
	OperationsTotal.WithLabelValues(op, status).Inc()
	return err
}

func (s *SearchService) refreshGauges() {
	st := s.engine.Stats()
	IndexedProducts.Set(float64(st.Products))
	GraphEdges.Set(float64(st.Edges))
}

func (s *SearchService) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, s.logger)
}

func limitResults(results []domain.SearchResult, limit int) []domain.SearchResult {
	limit = min(limit, MaxLimit)
	if limit <= 0 {
		return []domain.SearchResult{}
	}
	if len(results) > limit {
		return results[:limit]
	}
	if results == nil {
		return []domain.SearchResult{}
	}
	return results
}
