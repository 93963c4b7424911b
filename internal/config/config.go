package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/cengoxius/ecommerce01/pkg/config"
)

// Config holds all configuration for the storefront service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort        int           `env:"STOREFRONT_HTTP_PORT" envDefault:"8080"`
	RequestTimeout  time.Duration `env:"STOREFRONT_REQUEST_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"STOREFRONT_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// How long a page request waits for the product data before rendering
	// the loading state.
	SettleTimeout time.Duration `env:"STOREFRONT_SETTLE_TIMEOUT" envDefault:"3s"`

	// Backend services
	ProductServiceURL string `env:"PRODUCT_SERVICE_URL" envDefault:"http://localhost:8001"`
	CartServiceURL    string `env:"CART_SERVICE_URL" envDefault:"http://localhost:8003"`

	// Product search index, maintained by the search service.
	ElasticsearchURL   string `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200"`
	ElasticsearchIndex string `env:"ELASTICSEARCH_INDEX" envDefault:"ecommerce_products"`

	// Visits
	VisitTTL    time.Duration `env:"STOREFRONT_VISIT_TTL" envDefault:"30m"`
	MaxVisits   int           `env:"STOREFRONT_MAX_VISITS" envDefault:"50000"`
	MaxPages    int           `env:"STOREFRONT_MAX_PAGES_PER_VISIT" envDefault:"8"`
	VisitCookie string        `env:"STOREFRONT_VISIT_COOKIE" envDefault:"sf_visit"`

	// Sessions issued by the user service
	JWTSecret    string `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	JWTIssuer    string `env:"JWT_ISSUER" envDefault:""`
	SecureCookie bool   `env:"STOREFRONT_SECURE_COOKIE" envDefault:"false"`

	// Redis, for token revocation
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"true"`

	// Rate limiting of form posts, per client IP
	PostRateLimit float64 `env:"STOREFRONT_POST_RPS" envDefault:"2"`
	PostBurst     int     `env:"STOREFRONT_POST_BURST" envDefault:"10"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Metrics and pprof endpoints (IP allowlist in CIDR notation)
	OpsAllowedCIDRs []string `env:"OPS_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`

	// Overrides lists the variables that were set explicitly.
	Overrides []string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	overrides, err := pkgconfig.Load(cfg)
	if err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	cfg.Overrides = overrides
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	var errs []error
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port: %d", c.HTTPPort))
	}
	for _, svc := range []struct{ name, raw string }{
		{"PRODUCT_SERVICE_URL", c.ProductServiceURL},
		{"CART_SERVICE_URL", c.CartServiceURL},
		{"ELASTICSEARCH_URL", c.ElasticsearchURL},
	} {
		u, err := url.Parse(svc.raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s must be an absolute URL, got %q", svc.name, svc.raw))
		}
	}
	if c.SettleTimeout <= 0 || c.SettleTimeout >= c.RequestTimeout {
		errs = append(errs, fmt.Errorf("STOREFRONT_SETTLE_TIMEOUT must be positive and below the request timeout, got %s", c.SettleTimeout))
	}
	if c.VisitTTL < time.Minute {
		errs = append(errs, fmt.Errorf("STOREFRONT_VISIT_TTL must be at least 1m, got %s", c.VisitTTL))
	}
	if c.MaxVisits < 1 {
		errs = append(errs, fmt.Errorf("STOREFRONT_MAX_VISITS must be positive, got %d", c.MaxVisits))
	}
	if c.MaxPages < 1 {
		errs = append(errs, fmt.Errorf("STOREFRONT_MAX_PAGES_PER_VISIT must be positive, got %d", c.MaxPages))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Environment == "production" && c.JWTSecret == "dev-secret-change-me" {
		errs = append(errs, errors.New("JWT_SECRET must be set in production"))
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is set"))
	}
	if c.PostRateLimit <= 0 || c.PostBurst < 1 {
		errs = append(errs, fmt.Errorf("invalid post rate limit: %g rps, burst %d", c.PostRateLimit, c.PostBurst))
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate))
	}
	return errors.Join(errs...)
}
