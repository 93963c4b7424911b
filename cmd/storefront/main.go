package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cengoxius/ecommerce01/internal/app"
	"github.com/cengoxius/ecommerce01/internal/config"
	"github.com/cengoxius/ecommerce01/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New("storefront", cfg.LogLevel)
	if err := run(cfg, log); err != nil {
		log.Error("storefront exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("storefront stopped")
}

// run serves until SIGINT or SIGTERM.
func run(cfg *config.Config, log *slog.Logger) error {
	log.Info("starting storefront",
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("product_service", cfg.ProductServiceURL),
		slog.String("cart_service", cfg.CartServiceURL),
		slog.Any("overrides", cfg.Overrides),
	)

	storefront, err := app.NewApp(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return storefront.Run(ctx)
}
