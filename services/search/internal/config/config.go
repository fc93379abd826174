package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"time"

	pkgconfig "github.com/barbmarcio/megastore-search/pkg/config"
	"github.com/barbmarcio/megastore-search/services/search/internal/engine"
)

// Config holds all configuration for the search service.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"search-service"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort        int           `env:"SEARCH_HTTP_PORT" envDefault:"8010"`
	RequestTimeout  time.Duration `env:"SEARCH_REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SEARCH_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	HealthTimeout   time.Duration `env:"SEARCH_HEALTH_TIMEOUT" envDefault:"5s"`
	CacheMaxAge     int           `env:"SEARCH_CACHE_MAX_AGE" envDefault:"30"`
	AdminToken      string        `env:"SEARCH_ADMIN_TOKEN"`
	CORSOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	// pprof is only mounted when at least one CIDR is configured.
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`

	// Ranking
	RecommendationSeeds     int     `env:"SEARCH_RECOMMENDATION_SEEDS" envDefault:"3"`
	RecommendationBoost     float64 `env:"SEARCH_RECOMMENDATION_BOOST" envDefault:"10"`
	SecondDegreeAttenuation float64 `env:"SEARCH_SECOND_DEGREE_ATTENUATION" envDefault:"0.5"`

	// Indexing
	BulkWorkers  int    `env:"SEARCH_BULK_WORKERS" envDefault:"0"`
	SnapshotPath string `env:"SEARCH_SNAPSHOT_PATH"`

	// Product catalog used by reindex. Empty disables reindexing.
	CatalogURL     string        `env:"PRODUCT_SERVICE_URL"`
	CatalogTimeout time.Duration `env:"PRODUCT_SERVICE_TIMEOUT" envDefault:"10s"`

	// Kafka
	KafkaEnabled      bool          `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers      []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID      string        `env:"KAFKA_GROUP_ID" envDefault:"search-service"`
	KafkaMaxRetries   int           `env:"KAFKA_MAX_RETRIES" envDefault:"3"`
	KafkaRetryBackoff time.Duration `env:"KAFKA_RETRY_BACKOFF" envDefault:"500ms"`
	KafkaDLQEnabled   bool          `env:"KAFKA_DLQ_ENABLED" envDefault:"true"`
	KafkaDedupTTL     time.Duration `env:"KAFKA_DEDUP_TTL" envDefault:"24h"`
	KafkaDedupMax     int           `env:"KAFKA_DEDUP_MAX_ENTRIES" envDefault:"100000"`

	// Tracing
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load(opts ...pkgconfig.Option) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg, opts...); err != nil {
		return nil, fmt.Errorf("load search config: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port: %d", c.HTTPPort))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("SEARCH_REQUEST_TIMEOUT must be positive"))
	}
	if c.HealthTimeout <= 0 {
		errs = append(errs, errors.New("SEARCH_HEALTH_TIMEOUT must be positive"))
	}
	if c.CacheMaxAge < 0 {
		errs = append(errs, errors.New("SEARCH_CACHE_MAX_AGE must not be negative"))
	}
	if c.BulkWorkers < 0 {
		errs = append(errs, errors.New("SEARCH_BULK_WORKERS must not be negative"))
	}
	if err := c.EngineOptions().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.CatalogURL != "" {
		if u, err := url.Parse(c.CatalogURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PRODUCT_SERVICE_URL is not an absolute URL: %q", c.CatalogURL))
		}
	}
	for _, cidr := range c.PprofAllowedCIDRs {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			errs = append(errs, fmt.Errorf("PPROF_ALLOWED_CIDRS: %w", err))
		}
	}
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is set"))
		}
		if c.KafkaGroupID == "" {
			errs = append(errs, errors.New("KAFKA_GROUP_ID is required when KAFKA_ENABLED is set"))
		}
		if c.KafkaDedupTTL <= 0 {
			errs = append(errs, errors.New("KAFKA_DEDUP_TTL must be positive"))
		}
		if c.KafkaDedupMax < 0 {
			errs = append(errs, errors.New("KAFKA_DEDUP_MAX_ENTRIES must not be negative"))
		}
		if c.KafkaMaxRetries < 0 {
			errs = append(errs, errors.New("KAFKA_MAX_RETRIES must not be negative"))
		}
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		errs = append(errs, errors.New("OTEL_SAMPLE_RATE must be between 0.0 and 1.0"))
	}
	return errors.Join(errs...)
}

// EngineOptions builds the ranking options of the search engine.
func (c *Config) EngineOptions() engine.Options {
	opts := engine.DefaultOptions()
	opts.RecommendationSeeds = c.RecommendationSeeds
	opts.RecommendationBoost = c.RecommendationBoost
	opts.Scoring.SecondDegreeAttenuation = c.SecondDegreeAttenuation
	return opts
}
