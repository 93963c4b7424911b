package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/cengoxius/ecommerce01/internal/cart"
	"github.com/cengoxius/ecommerce01/internal/catalog"
	"github.com/cengoxius/ecommerce01/internal/config"
	"github.com/cengoxius/ecommerce01/internal/event"
	handler "github.com/cengoxius/ecommerce01/internal/handler/http"
	"github.com/cengoxius/ecommerce01/internal/identity"
	"github.com/cengoxius/ecommerce01/internal/page"
	"github.com/cengoxius/ecommerce01/internal/search"
	"github.com/cengoxius/ecommerce01/internal/visit"
	"github.com/cengoxius/ecommerce01/pkg/database"
	"github.com/cengoxius/ecommerce01/pkg/health"
	"github.com/cengoxius/ecommerce01/pkg/httpclient"
	pkgkafka "github.com/cengoxius/ecommerce01/pkg/kafka"
	"github.com/cengoxius/ecommerce01/pkg/middleware"
	"github.com/cengoxius/ecommerce01/pkg/tracing"
)

// App wires together all dependencies and runs the storefront.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	visits         *visit.Registry
	limiter        *middleware.Limiter
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Tracing.
	tracingCfg := tracing.DefaultConfig("storefront")
	tracingCfg.Enabled = cfg.OTELEnabled
	tracingCfg.OTLPEndpoint = cfg.OTELEndpoint
	tracingCfg.SampleRate = cfg.OTELSampleRate
	tracingCfg.Environment = cfg.Environment
	tracerShutdown, err := tracing.Setup(ctx, tracingCfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Redis, for token revocation.
	redisCfg := database.DefaultRedisConfig()
	redisCfg.Host = cfg.RedisHost
	redisCfg.Port = cfg.RedisPort
	redisCfg.Password = cfg.RedisPassword
	redisCfg.DB = cfg.RedisDB
	rdb, err := database.NewRedisClient(ctx, redisCfg)
	if err != nil {
		_ = tracerShutdown(ctx)
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis",
		slog.String("addr", redisCfg.Addr()),
		slog.Int("db", redisCfg.DB),
	)

	// Kafka producer. Events are optional; a nil publisher drops them.
	var (
		producer  *pkgkafka.Producer
		publisher event.Publisher
	)
	if cfg.KafkaEnabled {
		producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = producer
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Identity.
	verifier := identity.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	sessions := identity.NewStore(verifier, identity.NewRedisRevocations(rdb), cfg.SecureCookie, logger)

	// Backend services, each behind its own circuit breaker.
	products := catalog.NewClient(cfg.ProductServiceURL, httpclient.NewUpstream("product-service", httpclient.DefaultConfig(), logger), sessions, logger)
	carts := cart.NewClient(cfg.CartServiceURL, httpclient.NewUpstream("cart-service", httpclient.DefaultConfig(), logger), sessions, logger)

	// Product search reads the index the search service maintains.
	index, err := search.New(cfg.ElasticsearchURL, cfg.ElasticsearchIndex, logger)
	if err != nil {
		_ = rdb.Close()
		_ = tracerShutdown(ctx)
		return nil, fmt.Errorf("init search index: %w", err)
	}

	// Page state per browser visit.
	visits := visit.NewRegistry(visit.Config{TTL: cfg.VisitTTL, MaxVisits: cfg.MaxVisits, MaxPages: cfg.MaxPages}, func() *page.Loop {
		return page.NewLoop(products, carts, sessions, logger)
	}, logger)

	// Health checks.
	healthHandler := health.NewHandler(2 * time.Second)
	healthHandler.Register("redis", database.RedisChecker(rdb))
	healthHandler.Register("product-service", products.Ping)
	healthHandler.RegisterOptional("elasticsearch", index.Ping)
	if producer != nil {
		healthHandler.RegisterOptional("kafka", producer.Ping)
	}

	// HTTP router.
	storefront, err := handler.NewStorefrontHandler(sessions, event.NewProducer(publisher, logger), index, cfg.SettleTimeout, logger)
	if err != nil {
		_ = rdb.Close()
		_ = tracerShutdown(ctx)
		return nil, fmt.Errorf("build storefront handler: %w", err)
	}
	limiter := middleware.NewLimiter(cfg.PostRateLimit, cfg.PostBurst, 10*time.Minute)
	router := handler.NewRouter(handler.RouterConfig{
		RequestTimeout:  cfg.RequestTimeout,
		VisitCookie:     cfg.VisitCookie,
		VisitTTL:        cfg.VisitTTL,
		SecureCookie:    cfg.SecureCookie,
		OpsAllowedCIDRs: cfg.OpsAllowedCIDRs,
	}, storefront, sessions, visits, limiter, healthHandler, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		rdb:            rdb,
		producer:       producer,
		visits:         visits,
		limiter:        limiter,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and the background sweepers, and blocks until
// the context is canceled or the server fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.visits.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.limiter.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			a.logger.Info("shutdown signal received")
		}
		return a.Shutdown()
	})

	return g.Wait()
}

// Shutdown gracefully stops all components: the HTTP server first, then
// in-flight page commands, then the event and storage clients.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	// Commands outlive their requests; let them land before their
	// collaborators go away.
	if err := a.visits.Drain(shutdownCtx); err != nil {
		a.logger.Warn("page commands still running at shutdown", slog.String("error", err.Error()))
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}

	if err := a.rdb.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
	}

	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}
