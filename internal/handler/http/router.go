package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/cengoxius/ecommerce01/internal/identity"
	"github.com/cengoxius/ecommerce01/internal/visit"
	"github.com/cengoxius/ecommerce01/pkg/health"
	"github.com/cengoxius/ecommerce01/pkg/middleware"
)

// RouterConfig carries the transport settings of the storefront router.
type RouterConfig struct {
	RequestTimeout  time.Duration
	VisitCookie     string
	VisitTTL        time.Duration
	SecureCookie    bool
	OpsAllowedCIDRs []string
}

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(
	cfg RouterConfig,
	handler *StorefrontHandler,
	sessions *identity.Store,
	visits *visit.Registry,
	limiter *middleware.Limiter,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestLogging(logger, "/health/", "/metrics", "/debug/"))
	r.Use(middleware.PrometheusMetrics("storefront"))
	r.Use(middleware.Tracing("storefront"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())

	// Metrics and pprof with IP allowlist.
	middleware.RegisterOps(r, cfg.OpsAllowedCIDRs, logger)

	// Storefront pages
	r.Group(func(r chi.Router) {
		r.Use(sessions.Middleware)
		r.Use(VisitCookie(visits, cfg.VisitCookie, cfg.VisitTTL, cfg.SecureCookie))
		r.Use(middleware.RequestLogger(logger))
		r.Use(middleware.NoStore)

		r.Get("/", handler.Home)
		r.Get("/search", handler.Search)
		r.Get("/products/{id}", handler.ShowProduct)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(limiter, logger))

			r.Post("/products/{id}/cart", handler.AddToCart)
			r.Post("/products/{id}/reviews", handler.SubmitReview)
			r.Post("/logout", handler.Logout)
		})
	})

	return r
}
