// Command seed populates a running search service with a deterministic
// synthetic catalog through its bulk and relation endpoints.
//
// Run: SEARCH_ADMIN_TOKEN=... go run ./services/search/cmd/seed
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	pkgconfig "github.com/barbmarcio/megastore-search/pkg/config"
	"github.com/barbmarcio/megastore-search/pkg/httpclient"
	"github.com/barbmarcio/megastore-search/pkg/logger"
	"github.com/barbmarcio/megastore-search/services/search/internal/domain"
	"github.com/barbmarcio/megastore-search/services/search/internal/service"
)

const targetName = "search-service"

type seedConfig struct {
	TargetURL   string        `env:"SEED_TARGET_URL" envDefault:"http://localhost:8010"`
	AdminToken  string        `env:"SEARCH_ADMIN_TOKEN"`
	Products    int           `env:"SEED_PRODUCTS" envDefault:"10000"`
	BatchSize   int           `env:"SEED_BATCH_SIZE" envDefault:"500"`
	Concurrency int           `env:"SEED_CONCURRENCY" envDefault:"8"`
	RandomSeed  uint64        `env:"SEED_RANDOM_SEED" envDefault:"42"`
	Timeout     time.Duration `env:"SEED_TIMEOUT" envDefault:"10m"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *seedConfig) Validate() error {
	switch {
	case c.Products < 1:
		return fmt.Errorf("SEED_PRODUCTS must be positive, got %d", c.Products)
	case c.BatchSize < 1 || c.BatchSize > 5000:
		return fmt.Errorf("SEED_BATCH_SIZE must be between 1 and 5000, got %d", c.BatchSize)
	case c.Concurrency < 1:
		return fmt.Errorf("SEED_CONCURRENCY must be positive, got %d", c.Concurrency)
	}
	return nil
}

type uploadStats struct {
	Products  int
	Relations int
}

func main() {
	if err := run(); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	var cfg seedConfig
	if err := pkgconfig.Load(&cfg); err != nil {
		return err
	}
	log := logger.New("search-seed", cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, cfg.Timeout)
	defer cancelTimeout()

	log.Info("generating catalog", slog.Int("products", cfg.Products), slog.Uint64("seed", cfg.RandomSeed))
	cat := generateCatalog(cfg.Products, cfg.RandomSeed)

	hcfg := httpclient.DefaultConfig()
	hcfg.Timeout = time.Minute
	hcfg.UserAgent = "search-seed"
	client := httpclient.New(hcfg)

	start := time.Now()
	st, err := upload(ctx, client, cfg, cat, log)
	if err != nil {
		return err
	}

	var stats struct {
		Data domain.Stats `json:"data"`
	}
	if err := httpclient.GetJSON(ctx, client, apiURL(cfg.TargetURL, "/stats"), targetName, &stats); err != nil {
		return fmt.Errorf("fetch stats: %w", err)
	}
	log.Info("seed complete",
		slog.Int("products_sent", st.Products),
		slog.Int("relations_sent", st.Relations),
		slog.Int("products_indexed", stats.Data.Products),
		slog.Int("edges", stats.Data.Edges),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// upload sends every product in batches, then every relation. Relations are
// only sent once all products exist, since they reference both endpoints.
func upload(ctx context.Context, d httpclient.Doer, cfg seedConfig, cat seedCatalog, log *slog.Logger) (uploadStats, error) {
	var st uploadStats

	var indexed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for start := 0; start < len(cat.Products); start += cfg.BatchSize {
		batch := cat.Products[start:min(start+cfg.BatchSize, len(cat.Products))]
		g.Go(func() error {
			var res struct {
				Data service.BulkResult `json:"data"`
			}
			body := map[string]any{"products": batch}
			if err := httpclient.PostJSON(gctx, d, apiURL(cfg.TargetURL, "/products/bulk"), targetName, cfg.AdminToken, body, &res); err != nil {
				return fmt.Errorf("bulk index products %d-%d: %w", batch[0].ID, batch[len(batch)-1].ID, err)
			}
			n := indexed.Add(int64(res.Data.Indexed))
			log.Debug("batch indexed", slog.Int64("indexed", n), slog.Int("total", len(cat.Products)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return st, err
	}
	st.Products = int(indexed.Load())
	log.Info("products indexed", slog.Int("count", st.Products))

	var related atomic.Int64
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for _, rel := range cat.Relations {
		g.Go(func() error {
			if err := httpclient.PostJSON(gctx, d, apiURL(cfg.TargetURL, "/relations"), targetName, cfg.AdminToken, rel, nil); err != nil {
				return fmt.Errorf("add relation %d-%d (%s): %w", rel.Source, rel.Target, rel.Kind, err)
			}
			related.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return st, err
	}
	st.Relations = int(related.Load())
	log.Info("relations added", slog.Int("count", st.Relations))
	return st, nil
}

func apiURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/api/v1" + path
}
