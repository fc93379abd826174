package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/barbmarcio/megastore-search/pkg/errors"
	"github.com/barbmarcio/megastore-search/pkg/httpclient"
	"github.com/barbmarcio/megastore-search/pkg/logger"
	"github.com/barbmarcio/megastore-search/pkg/pagination"
)

const catalogServiceName = "product-service"

// maxReindexPages bounds a reindex run in case the catalog keeps reporting
// a next page.
const maxReindexPages = 10_000

// ReindexResult summarizes a reindex run.
type ReindexResult struct {
	Pages    int   `json:"pages"`
	Indexed  int   `json:"indexed"`
	Skipped  int   `json:"skipped"`
	Duration int64 `json:"duration_ms"`
}

// Reindex pulls every product from the catalog service page by page and
// upserts it into the engine. Products already indexed but absent from the
// catalog are left in place. Invalid catalog records are skipped.
func (s *SearchService) Reindex(ctx context.Context) (ReindexResult, error) {
	if s.catalog == nil || s.catalogURL == "" {
		return ReindexResult{}, apperrors.Unavailable("catalog service not configured", errors.New("reindex: missing catalog url"))
	}

	ctx = logger.WithOrigin(ctx, logger.OriginReindex)
	start := time.Now()
	var res ReindexResult

	err := s.observe(ctx, "reindex", func(ctx context.Context) error {
		for page := 1; page <= maxReindexPages; page++ {
			if err := ctx.Err(); err != nil {
				return err
			}

			batch, err := s.fetchCatalogPage(ctx, page)
			if err != nil {
				return fmt.Errorf("reindex page %d: %w", page, err)
			}
			res.Pages++

			br, err := s.indexLenient(ctx, batch.Data)
			if err != nil {
				return fmt.Errorf("reindex page %d: %w", page, err)
			}
			res.Indexed += br.Indexed
			res.Skipped += br.Skipped
			ReindexedProducts.WithLabelValues("indexed").Add(float64(br.Indexed))
			ReindexedProducts.WithLabelValues("skipped").Add(float64(br.Skipped))

			if !batch.HasNext || len(batch.Data) == 0 {
				break
			}
		}
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.Int("reindex.pages", res.Pages),
			attribute.Int("reindex.indexed", res.Indexed),
		)
		return nil
	})
	res.Duration = time.Since(start).Milliseconds()
	s.refreshGauges()

	if err != nil {
		s.log(ctx).ErrorContext(ctx, "reindex failed",
			slog.Int("pages", res.Pages),
			slog.Int("indexed", res.Indexed),
			slog.String("error", err.Error()),
		)
		return res, err
	}

	s.log(ctx).InfoContext(ctx, "reindex completed",
		slog.Int("pages", res.Pages),
		slog.Int("indexed", res.Indexed),
		slog.Int("skipped", res.Skipped),
		slog.Int64("duration_ms", res.Duration),
	)
	return res, nil
}

func (s *SearchService) fetchCatalogPage(ctx context.Context, page int) (pagination.Result[IndexProductInput], error) {
	url := fmt.Sprintf("%s/api/v1/products?page=%d&per_page=%d", s.catalogURL, page, pagination.MaxPerPage)

	var batch pagination.Result[IndexProductInput]
	if err := httpclient.GetJSON(ctx, s.catalog, url, catalogServiceName, &batch); err != nil {
		return batch, err
	}
	return batch, nil
}
