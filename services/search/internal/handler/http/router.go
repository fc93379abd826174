package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/barbmarcio/megastore-search/pkg/health"
	"github.com/barbmarcio/megastore-search/pkg/middleware"
	"github.com/barbmarcio/megastore-search/services/search/internal/service"
)

const serviceName = "search"

// RouterConfig holds the HTTP-facing settings of the search service.
type RouterConfig struct {
	// AdminToken guards every mutating endpoint. Empty disables the check.
	AdminToken string
	// CacheMaxAge is the Cache-Control max-age, in seconds, of query responses.
	CacheMaxAge int
	// RequestTimeout bounds each request. Zero means 30s.
	RequestTimeout time.Duration
	// PprofAllowedCIDRs enables /debug/pprof for the given networks.
	PprofAllowedCIDRs []string
	CORS              middleware.CORSConfig
}

// NewRouter creates a chi router with all search service routes registered.
func NewRouter(
	searchService *service.SearchService,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(chimw.Compress(5))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	if len(cfg.PprofAllowedCIDRs) > 0 {
		middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)
	}

	h := NewSearchHandler(searchService, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Timeout(cfg.RequestTimeout))

		r.Group(func(r chi.Router) {
			r.Use(middleware.CacheControl(cfg.CacheMaxAge))
			r.Get("/search", h.Search)
			r.Get("/stats", h.Stats)
			r.Get("/products", h.ListProducts)
			r.Get("/products/{id}", h.GetProduct)
			r.Get("/products/{id}/similar", h.Similar)
			r.Get("/products/{id}/bought-together", h.BoughtTogether)
			r.Get("/products/{id}/recommendations", h.Recommendations)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireToken(cfg.AdminToken))
			r.Use(ContentTypeJSON)
			r.Post("/products", h.IndexProduct)
			r.Post("/products/bulk", h.BulkIndex)
			r.Delete("/products/{id}", h.DeleteProduct)
			r.Post("/relations", h.AddRelation)
			r.Post("/reindex", h.Reindex)
			r.Get("/snapshot", h.ExportSnapshot)
			r.Post("/snapshot", h.ImportSnapshot)
		})
	})

	return r
}
