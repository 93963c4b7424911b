package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cengoxius/ecommerce01/internal/domain"
	apperrors "github.com/cengoxius/ecommerce01/pkg/errors"
	"github.com/cengoxius/ecommerce01/pkg/httpclient"
	"github.com/cengoxius/ecommerce01/pkg/logger"
	"github.com/cengoxius/ecommerce01/pkg/tracing"
)

const serviceName = "cart-service"

// SessionReader supplies the identity that owns the cart.
type SessionReader interface {
	CurrentSession(ctx context.Context) domain.Session
}

// Client adds items to the shopper's cart in the cart service.
type Client struct {
	baseURL  string
	http     *httpclient.Upstream
	identity SessionReader
	tracer   trace.Tracer
	logger   *slog.Logger
}

// NewClient creates a cart service client rooted at baseURL.
func NewClient(baseURL string, hc *httpclient.Upstream, identity SessionReader, logger *slog.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     hc,
		identity: identity,
		tracer:   tracing.Tracer("storefront/cart"),
		logger:   logger,
	}
}

type addItemDTO struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// Owner returns the cart owner for a request: the signed-in user, or a
// guest cart tied to the browser visit.
func Owner(ctx context.Context, session domain.Session) string {
	if session.Authenticated() {
		return session.UserID
	}
	if visit := logger.VisitIDFromContext(ctx); visit != "" {
		return "guest-" + visit
	}
	return ""
}

// AddToCart adds quantity units of product id to the current owner's cart.
func (c *Client) AddToCart(ctx context.Context, id string, quantity int) error {
	ctx, span := c.tracer.Start(ctx, "cart.AddToCart", trace.WithAttributes(
		attribute.String("product.id", id),
		attribute.Int("cart.quantity", quantity),
	))
	defer span.End()

	if quantity < 1 {
		return apperrors.InvalidInput("quantity must be at least 1")
	}

	session := c.identity.CurrentSession(ctx)
	owner := Owner(ctx, session)
	if owner == "" {
		err := apperrors.Unauthorized("no cart owner for this request")
		tracing.Fail(span, err)
		return err
	}

	body, err := json.Marshal(addItemDTO{ProductID: id, VariantID: id, Quantity: quantity})
	if err != nil {
		return fmt.Errorf("marshal cart item: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/cart/items", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create cart request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", owner)
	if session.Token != "" {
		req.Header.Set("Authorization", "Bearer "+session.Token)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		err = apperrors.ServiceUnavailable(serviceName, err)
		tracing.Fail(span, err)
		return err
	}
	defer resp.Body.Close()

	if !httpclient.IsSuccess(resp.StatusCode) {
		err := httpclient.ParseResponseError(resp, serviceName)
		tracing.Fail(span, err)
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	logger.WithContext(ctx, c.logger).Debug("item added to cart",
		slog.String("product_id", id),
		slog.Int("quantity", quantity),
	)
	return nil
}
