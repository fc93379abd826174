package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/barbmarcio/megastore-search/pkg/errors"
	"github.com/barbmarcio/megastore-search/pkg/httputil"
	"github.com/barbmarcio/megastore-search/pkg/pagination"
	"github.com/barbmarcio/megastore-search/services/search/internal/domain"
	"github.com/barbmarcio/megastore-search/services/search/internal/service"
)

// SearchHandler handles HTTP requests for search endpoints.
type SearchHandler struct {
	service *service.SearchService
	logger  *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(svc *service.SearchService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		service: svc,
		logger:  logger,
	}
}

// SearchResponse is the payload of GET /api/v1/search.
type SearchResponse struct {
	Query   *string               `json:"query"`
	Results []domain.SearchResult `json:"results"`
	Count   int                   `json:"count"`
}

// RecommendationResponse is the payload of the per-product graph endpoints.
type RecommendationResponse struct {
	ProductID uint64                `json:"product_id"`
	Results   []domain.SearchResult `json:"results"`
	Count     int                   `json:"count"`
}

// Search handles GET /api/v1/search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	req, err := parseSearchRequest(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	results := h.service.Search(r.Context(), req)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: SearchResponse{
		Query:   req.Query,
		Results: results,
		Count:   len(results),
	}})
}

// parseSearchRequest reads q, the filter parameters, recommend and limit.
// A present but blank q is treated as absent by the service.
func parseSearchRequest(r *http.Request) (service.SearchRequest, error) {
	q := r.URL.Query()
	var req service.SearchRequest

	if q.Has("q") {
		text := q.Get("q")
		req.Query = &text
	}

	var opts []domain.FilterOption
	if v := q.Get("category"); v != "" {
		c, err := domain.ParseCategory(v)
		if err != nil {
			return req, apperrors.InvalidFilter("unknown category " + v)
		}
		opts = append(opts, domain.WithCategory(c))
	}
	if q.Has("brand") {
		opts = append(opts, domain.WithBrand(q.Get("brand")))
	}
	for _, p := range []struct {
		name string
		opt  func(float64) domain.FilterOption
	}{
		{"min_price", domain.WithMinPrice},
		{"max_price", domain.WithMaxPrice},
		{"min_rating", domain.WithMinRating},
	} {
		v, err := httputil.QueryFloat(r, p.name)
		if err != nil {
			return req, err
		}
		if v != nil {
			opts = append(opts, p.opt(*v))
		}
	}
	if tags := q["tag"]; len(tags) > 0 {
		opts = append(opts, domain.WithTags(tags...))
	}
	inStock, err := httputil.QueryBool(r, "in_stock", false)
	if err != nil {
		return req, err
	}
	if inStock {
		opts = append(opts, domain.WithInStockOnly())
	}

	if req.Filters, err = domain.NewSearchFilters(opts...); err != nil {
		return req, err
	}
	if req.Recommend, err = httputil.QueryBool(r, "recommend", false); err != nil {
		return req, err
	}
	if req.Limit, err = parseLimit(r); err != nil {
		return req, err
	}
	return req, nil
}

func parseLimit(r *http.Request) (int, error) {
	limit, err := httputil.QueryInt(r, "limit", service.DefaultLimit)
	if err != nil {
		return 0, err
	}
	if limit < 1 || limit > service.MaxLimit {
		return 0, apperrors.InvalidInput("limit must be between 1 and 100")
	}
	return limit, nil
}

// ListProducts handles GET /api/v1/products
func (h *SearchHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	page := h.service.ListProducts(r.Context(), pagination.FromRequest(r))
	httputil.WriteJSON(w, http.StatusOK, page)
}

// GetProduct handles GET /api/v1/products/{id}
func (h *SearchHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	p, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: p})
}

// Similar handles GET /api/v1/products/{id}/similar
func (h *SearchHandler) Similar(w http.ResponseWriter, r *http.Request) {
	h.neighbors(w, r, h.service.SimilarProducts)
}

// BoughtTogether handles GET /api/v1/products/{id}/bought-together
func (h *SearchHandler) BoughtTogether(w http.ResponseWriter, r *http.Request) {
	h.neighbors(w, r, h.service.BoughtTogether)
}

// Recommendations handles GET /api/v1/products/{id}/recommendations
func (h *SearchHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	h.neighbors(w, r, h.service.Recommendations)
}

func (h *SearchHandler) neighbors(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, id uint64, limit int) ([]domain.SearchResult, error)) {
	id, ok := httputil.ParseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	results, err := fn(r.Context(), id, limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: RecommendationResponse{
		ProductID: id,
		Results:   results,
		Count:     len(results),
	}})
}

// Stats handles GET /api/v1/stats
func (h *SearchHandler) Stats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: h.service.Stats(r.Context())})
}
