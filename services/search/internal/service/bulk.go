package service

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/barbmarcio/megastore-search/services/search/internal/domain"
)

// BulkResult summarizes a bulk load.
type BulkResult struct {
	Indexed int `json:"indexed"`
	Skipped int `json:"skipped"`
}

// BulkIndex validates every input on a bounded worker pool and stores the
// products under a single write lock. Any invalid input rejects the whole
// batch and nothing is stored.
func (s *SearchService) BulkIndex(ctx context.Context, inputs []IndexProductInput) (BulkResult, error) {
	var res BulkResult
	err := s.observe(ctx, "bulk_index", func(ctx context.Context) error {
		products, _, err := s.prepare(ctx, inputs, false)
		if err != nil {
			return fmt.Errorf("bulk index: %w", err)
		}
		if err := s.engine.AddProducts(products); err != nil {
			return fmt.Errorf("bulk index: %w", err)
		}
		res.Indexed = len(products)
		return nil
	})
	if err != nil {
		return BulkResult{}, err
	}

	s.refreshGauges()
	s.log(ctx).InfoContext(ctx, "bulk index completed",
		slog.Int("count", res.Indexed),
	)
	return res, nil
}

// indexLenient stores the valid inputs and skips the rest, logging each
// rejected item. Used for catalog pages where one bad record should not
// block the others.
func (s *SearchService) indexLenient(ctx context.Context, inputs []IndexProductInput) (BulkResult, error) {
	products, rejected, err := s.prepare(ctx, inputs, true)
	if err != nil {
		return BulkResult{}, err
	}
	for i, rerr := range rejected {
		s.log(ctx).WarnContext(ctx, "skipping invalid catalog product",
			slog.Uint64("product_id", inputs[i].ID),
			slog.String("error", rerr.Error()),
		)
	}
	if err := s.engine.AddProducts(products); err != nil {
		return BulkResult{}, err
	}
	return BulkResult{Indexed: len(products), Skipped: len(rejected)}, nil
}

// prepare converts inputs to products on up to bulkWorkers goroutines,
// preserving input order. In lenient mode invalid inputs are collected by
// position instead of failing the batch.
func (s *SearchService) prepare(ctx context.Context, inputs []IndexProductInput, lenient bool) ([]domain.Product, map[int]error, error) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("bulk.size", len(inputs)))

	products := make([]domain.Product, len(inputs))
	errs := make([]error, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.bulkWorkers)
	for i := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := inputs[i].toProduct()
			if err != nil {
				if lenient {
					errs[i] = err
					return nil
				}
				return fmt.Errorf("item %d: %w", i, err)
			}
			products[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	rejected := make(map[int]error)
	valid := products[:0]
	for i := range products {
		if errs[i] != nil {
			rejected[i] = errs[i]
			continue
		}
		valid = append(valid, products[i])
	}
	return valid, rejected, nil
}
