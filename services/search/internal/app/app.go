package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/barbmarcio/megastore-search/pkg/health"
	"github.com/barbmarcio/megastore-search/pkg/httpclient"
	pkgkafka "github.com/barbmarcio/megastore-search/pkg/kafka"
	"github.com/barbmarcio/megastore-search/pkg/middleware"
	"github.com/barbmarcio/megastore-search/pkg/tracing"
	"github.com/barbmarcio/megastore-search/services/search/internal/config"
	"github.com/barbmarcio/megastore-search/services/search/internal/engine"
	"github.com/barbmarcio/megastore-search/services/search/internal/event"
	handler "github.com/barbmarcio/megastore-search/services/search/internal/handler/http"
	"github.com/barbmarcio/megastore-search/services/search/internal/service"
)

// App wires together all dependencies and runs the search service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	service        *service.SearchService
	subscriber     *event.Subscriber
	httpServer     *http.Server
	shutdownTracer func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
// A snapshot found at cfg.SnapshotPath is loaded before the app is returned.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	tcfg := tracing.DefaultConfig(cfg.ServiceName)
	tcfg.Environment = cfg.Environment
	tcfg.Enabled = cfg.OTELEnabled
	tcfg.OTLPEndpoint = cfg.OTELEndpoint
	tcfg.SampleRate = cfg.OTELSampleRate
	shutdownTracer, err := tracing.InitTracer(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	eng, err := engine.NewWithOptions(cfg.EngineOptions())
	if err != nil {
		return nil, fmt.Errorf("init engine: %w", err)
	}

	opts := []service.Option{service.WithBulkWorkers(cfg.BulkWorkers)}
	var catalog *httpclient.CircuitBreakerClient
	if cfg.CatalogURL != "" {
		hcfg := httpclient.DefaultConfig()
		hcfg.Timeout = cfg.CatalogTimeout
		hcfg.UserAgent = cfg.ServiceName
		catalog = httpclient.NewCircuitBreakerClient(
			httpclient.New(hcfg),
			httpclient.DefaultCircuitBreakerConfig("product-service"),
			logger,
		)
		opts = append(opts, service.WithCatalog(catalog, cfg.CatalogURL))
	}
	searchService := service.NewSearchService(eng, logger, opts...)

	if cfg.SnapshotPath != "" {
		loaded, err := searchService.LoadSnapshotFile(ctx, cfg.SnapshotPath)
		if err != nil {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
		if loaded {
			st := searchService.Stats(ctx)
			logger.Info("snapshot loaded",
				slog.String("path", cfg.SnapshotPath),
				slog.Int("products", st.Products),
				slog.Int("edges", st.Edges),
			)
		}
	}

	// Health checks.
	healthHandler := health.NewHandler(health.WithTimeout(cfg.HealthTimeout))
	healthHandler.RegisterCritical("engine", searchService.Ready)
	if catalog != nil {
		healthHandler.RegisterNonCritical("catalog", catalog.Check)
	}

	var subscriber *event.Subscriber
	if cfg.KafkaEnabled {
		subscriber = event.NewSubscriber(event.SubscriberConfig{
			Brokers:      cfg.KafkaBrokers,
			GroupID:      cfg.KafkaGroupID,
			MaxRetries:   cfg.KafkaMaxRetries,
			RetryBackoff: cfg.KafkaRetryBackoff,
			DLQEnabled:   cfg.KafkaDLQEnabled,

			IdempotencyTTL:      cfg.KafkaDedupTTL,
			IdempotencyCapacity: cfg.KafkaDedupMax,
		}, event.NewConsumer(searchService, logger), logger)
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
		})
		logger.Info("kafka subscriber initialized",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.Any("topics", subscriber.Topics()),
		)
	}

	cors := middleware.DefaultCORSConfig()
	if len(cfg.CORSOrigins) > 0 {
		cors.AllowedOrigins = cfg.CORSOrigins
	}

	router := handler.NewRouter(searchService, healthHandler, handler.RouterConfig{
		AdminToken:        cfg.AdminToken,
		CacheMaxAge:       cfg.CacheMaxAge,
		RequestTimeout:    cfg.RequestTimeout,
		PprofAllowedCIDRs: cfg.PprofAllowedCIDRs,
		CORS:              cors,
	}, logger)
	if cfg.AdminToken == "" {
		logger.Warn("SEARCH_ADMIN_TOKEN not set, write endpoints are unauthenticated")
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.RequestTimeout,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		service:        searchService,
		subscriber:     subscriber,
		httpServer:     httpServer,
		shutdownTracer: shutdownTracer,
	}, nil
}

// Run starts the HTTP server and the Kafka subscriber, blocking until the
// context is canceled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	if a.subscriber != nil {
		go func() {
			if err := a.subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("kafka subscriber: %w", err)
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	return errors.Join(runErr, a.Shutdown())
}

// Shutdown gracefully stops all components and persists the snapshot.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.subscriber != nil {
		if err := a.subscriber.Close(); err != nil {
			a.logger.Error("kafka subscriber close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// Writers are stopped, so the snapshot captures a quiescent engine.
	if a.cfg.SnapshotPath != "" {
		if err := a.service.SaveSnapshotFile(shutdownCtx, a.cfg.SnapshotPath); err != nil {
			a.logger.Error("snapshot save error", slog.String("error", err.Error()))
			errs = append(errs, err)
		} else {
			a.logger.Info("snapshot saved", slog.String("path", a.cfg.SnapshotPath))
		}
	}

	if err := a.shutdownTracer(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
