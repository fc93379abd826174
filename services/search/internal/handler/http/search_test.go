package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barbmarcio/megastore-search/pkg/health"
	"github.com/barbmarcio/megastore-search/pkg/middleware"
	"github.com/barbmarcio/megastore-search/services/search/internal/domain"
	"github.com/barbmarcio/megastore-search/services/search/internal/engine"
	"github.com/barbmarcio/megastore-search/services/search/internal/service"
)

const testToken = "s3cret"

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
}

type response struct {
	Data  json.RawMessage `json:"data"`
	Error *errorBody      `json:"error"`
}

func newTestService() *service.SearchService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return service.NewSearchService(engine.New(), logger)
}

func newTestRouter(svc *service.SearchService) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hh := health.NewHandler()
	hh.RegisterCritical("engine", svc.Ready)
	return NewRouter(svc, hh, RouterConfig{
		AdminToken:  testToken,
		CacheMaxAge: 30,
		CORS:        middleware.DefaultCORSConfig(),
	}, logger)
}

func seededRouter(t *testing.T) (http.Handler, *service.SearchService) {
	t.Helper()
	svc := newTestService()
	ctx := context.Background()
	for _, in := range []service.IndexProductInput{
		{ID: 1, Name: "Notebook Dell Inspiron", Brand: "Dell", Category: "Electronics", Price: 3500, Rating: 4.5, Stock: 2, Tags: []string{"laptop"}},
		{ID: 2, Name: "Mouse Logitech MX", Brand: "Logitech", Category: "Electronics", Price: 250, Rating: 4.8, Stock: 0, Tags: []string{"mouse"}},
		{ID: 3, Name: "Laptop Bag Targus", Brand: "Targus", Category: "Electronics", Price: 180, Rating: 4.1, Stock: 9, Tags: []string{"laptop", "bag"}},
		{ID: 4, Name: "Running Shoes", Brand: "Nike", Category: "Sports", Price: 400, Rating: 4.3, Stock: 5},
	} {
		_, err := svc.IndexProduct(ctx, in)
		require.NoError(t, err)
	}
	_, err := svc.AddRelation(ctx, service.AddRelationInput{Source: 1, Target: 2, Kind: "bought_together", Weight: 0.9})
	require.NoError(t, err)
	_, err = svc.AddRelation(ctx, service.AddRelationInput{Source: 2, Target: 3, Kind: "similar", Weight: 0.5})
	require.NoError(t, err)
	return newTestRouter(svc), svc
}

func do(t *testing.T, h http.Handler, method, target, body string, authed bool) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp response
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func decodeResults(t *testing.T, raw json.RawMessage) []uint64 {
	t.Helper()
	var payload struct {
		Results []domain.SearchResult `json:"results"`
		Count   int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Len(t, payload.Results, payload.Count)
	ids := make([]uint64, len(payload.Results))
	for i, r := range payload.Results {
		ids[i] = r.Product.ID
	}
	return ids
}

// --- Search ---

func TestSearch_TextQuery(t *testing.T) {
	router, _ := seededRouter(t)

	w, resp := do(t, router, http.MethodGet, "/api/v1/search?q=laptop", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.ElementsMatch(t, []uint64{1, 3}, decodeResults(t, resp.Data))
	assert.Equal(t, "public, max-age=30", w.Header().Get("Cache-Control"))
}

func TestSearch_Filters(t *testing.T) {
	router, _ := seededRouter(t)

	tests := []struct {
		name  string
		query string
		want  []uint64
	}{
		{"category", "category=sports", []uint64{4}},
		{"brand ignores case", "brand=dell", []uint64{1}},
		{"price range", "q=laptop&max_price=1000", []uint64{3}},
		{"min rating", "category=electronics&min_rating=4.6", []uint64{2}},
		{"tags", "tag=laptop&tag=bag", []uint64{3}},
		{"in stock", "q=mouse&in_stock=true", []uint64{}},
		{"limit", "category=electronics&limit=1", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := do(t, router, http.MethodGet, "/api/v1/search?"+tt.query, "", false)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			got := decodeResults(t, resp.Data)
			if tt.want == nil {
				assert.Len(t, got, 1)
				return
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestSearch_Recommend(t *testing.T) {
	router, _ := seededRouter(t)

	w, resp := do(t, router, http.MethodGet, "/api/v1/search?q=notebook&recommend=true", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	ids := decodeResults(t, resp.Data)
	require.NotEmpty(t, ids)
	assert.Equal(t, uint64(1), ids[0])
	assert.Contains(t, ids, uint64(2))
}

func TestSearch_BadParameters(t *testing.T) {
	router, _ := seededRouter(t)

	tests := []struct {
		name  string
		query string
		code  string
	}{
		{"min above max", "min_price=10&max_price=5", "INVALID_FILTER"},
		{"negative price", "min_price=-1", "INVALID_FILTER"},
		{"rating out of range", "min_rating=7", "INVALID_FILTER"},
		{"unknown category", "category=spaceships", "INVALID_FILTER"},
		{"empty brand", "brand=", "INVALID_FILTER"},
		{"price not a number", "max_price=abc", "INVALID_INPUT"},
		{"bad bool", "recommend=maybe", "INVALID_INPUT"},
		{"limit too large", "limit=1000", "INVALID_INPUT"},
		{"limit zero", "limit=0", "INVALID_INPUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := do(t, router, http.MethodGet, "/api/v1/search?"+tt.query, "", false)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
		})
	}
}

// --- Product reads ---

func TestGetProduct(t *testing.T) {
	router, _ := seededRouter(t)

	w, resp := do(t, router, http.MethodGet, "/api/v1/products/3", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	var p domain.Product
	require.NoError(t, json.Unmarshal(resp.Data, &p))
	assert.Equal(t, "Laptop Bag Targus", p.Name)
	assert.Equal(t, domain.CategoryElectronics, p.Category)

	w, resp = do(t, router, http.MethodGet, "/api/v1/products/99", "", false)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)

	w, resp = do(t, router, http.MethodGet, "/api/v1/products/abc", "", false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_PARAMETER", resp.Error.Code)
}

func TestListProducts(t *testing.T) {
	router, _ := seededRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/products?page=2&per_page=3", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var page struct {
		Data       []domain.Product `json:"data"`
		TotalCount int              `json:"total_count"`
		TotalPages int              `json:"total_pages"`
		HasNext    bool             `json:"has_next"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, 4, page.TotalCount)
	assert.Equal(t, 2, page.TotalPages)
	assert.False(t, page.HasNext)
	require.Len(t, page.Data, 1)
	assert.Equal(t, uint64(4), page.Data[0].ID)
}

func TestGraphEndpoints(t *testing.T) {
	router, _ := seededRouter(t)

	w, resp := do(t, router, http.MethodGet, "/api/v1/products/2/similar", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []uint64{3}, decodeResults(t, resp.Data))

	w, resp = do(t, router, http.MethodGet, "/api/v1/products/1/bought-together", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []uint64{2}, decodeResults(t, resp.Data))

	w, resp = do(t, router, http.MethodGet, "/api/v1/products/1/recommendations?limit=5", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.ElementsMatch(t, []uint64{2, 3}, decodeResults(t, resp.Data))

	w, resp = do(t, router, http.MethodGet, "/api/v1/products/42/recommendations", "", false)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestStats(t *testing.T) {
	router, _ := seededRouter(t)

	w, resp := do(t, router, http.MethodGet, "/api/v1/stats", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	var st domain.Stats
	require.NoError(t, json.Unmarshal(resp.Data, &st))
	assert.Equal(t, domain.Stats{Products: 4, Nodes: 4, Edges: 2}, st)
}

// --- Health ---

func TestHealthEndpoints(t *testing.T) {
	router, _ := seededRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"engine"`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "search_indexed_products")
}
