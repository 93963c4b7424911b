package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/cengoxius/ecommerce01/internal/domain"
	apperrors "github.com/cengoxius/ecommerce01/pkg/errors"
	"github.com/cengoxius/ecommerce01/pkg/httpclient"
	"github.com/cengoxius/ecommerce01/pkg/logger"
	"github.com/cengoxius/ecommerce01/pkg/tracing"
)

const (
	serviceName = "product-service"
	// maxBody caps how much of a downstream response is decoded.
	maxBody = 1 << 20
)

// SessionReader supplies the caller identity forwarded on writes.
type SessionReader interface {
	CurrentSession(ctx context.Context) domain.Session
}

// Client talks to the product service's REST API.
type Client struct {
	baseURL  string
	http     *httpclient.Upstream
	identity SessionReader
	tracer   trace.Tracer
	logger   *slog.Logger
}

// NewClient creates a product service client rooted at baseURL.
func NewClient(baseURL string, hc *httpclient.Upstream, identity SessionReader, logger *slog.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     hc,
		identity: identity,
		tracer:   tracing.Tracer("storefront/catalog"),
		logger:   logger,
	}
}

// --- Wire DTOs ---

type envelope[T any] struct {
	Data T `json:"data"`
}

type productDTO struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	BasePrice     int64      `json:"base_price"`
	Currency      string     `json:"currency"`
	StockQuantity int        `json:"stock_quantity"`
	Images        []imageDTO `json:"images"`
}

type imageDTO struct {
	URL       string `json:"url"`
	SortOrder int    `json:"sort_order"`
	IsPrimary bool   `json:"is_primary"`
}

type reviewDTO struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Rating    int       `json:"rating"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type reviewListDTO struct {
	Data    []reviewDTO `json:"data"`
	Summary struct {
		AverageRating float64 `json:"average_rating"`
		TotalCount    int     `json:"total_count"`
	} `json:"summary"`
}

type createReviewDTO struct {
	Rating int    `json:"rating"`
	Body   string `json:"body"`
}

// FetchByID loads a product and its reviews. The two calls run
// concurrently; an unavailable review list degrades to no reviews.
func (c *Client) FetchByID(ctx context.Context, id string) (*domain.Product, error) {
	ctx, span := c.tracer.Start(ctx, "catalog.FetchByID", trace.WithAttributes(attribute.String("product.id", id)))
	defer span.End()

	var (
		product productDTO
		reviews reviewListDTO
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.getJSON(gctx, c.productURL(id), &envelope[*productDTO]{Data: &product})
	})
	g.Go(func() error {
		if err := c.getJSON(gctx, c.productURL(id)+"/reviews?per_page=100", &reviews); err != nil {
			if gctx.Err() == nil {
				logger.WithContext(ctx, c.logger).Warn("review list unavailable",
					slog.String("product_id", id),
					slog.String("error", err.Error()),
				)
			}
			reviews = reviewListDTO{}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		tracing.Fail(span, err)
		return nil, err
	}
	if product.ID == "" {
		err := apperrors.NotFound("product", id)
		tracing.Fail(span, err)
		return nil, err
	}

	return toDomain(product, reviews), nil
}

// SubmitReview posts a review as the current user. Downstream validation
// messages are preserved so they can be shown next to the form.
func (c *Client) SubmitReview(ctx context.Context, id string, review domain.ReviewInput) error {
	ctx, span := c.tracer.Start(ctx, "catalog.SubmitReview", trace.WithAttributes(
		attribute.String("product.id", id),
		attribute.Int("review.rating", review.Rating),
	))
	defer span.End()

	session := c.identity.CurrentSession(ctx)
	if !session.Authenticated() {
		return apperrors.Unauthorized("sign in to write a review")
	}

	body, err := json.Marshal(createReviewDTO{Rating: review.Rating, Body: review.Comment})
	if err != nil {
		return fmt.Errorf("marshal review: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.productURL(id)+"/reviews", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create review request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", session.UserID)
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
	return nil
}

// Ping reports whether the product service answers its liveness check.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.Get(ctx, c.baseURL+"/health/live")
	if err != nil {
		return fmt.Errorf("product service: %w", err)
	}
	defer resp.Body.Close()
	if !httpclient.IsSuccess(resp.StatusCode) {
		return fmt.Errorf("product service: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) productURL(id string) string {
	return c.baseURL + "/api/v1/products/" + url.PathEscape(id)
}

func (c *Client) getJSON(ctx context.Context, target string, out any) error {
	resp, err := c.http.Get(ctx, target)
	if err != nil {
		return apperrors.ServiceUnavailable(serviceName, err)
	}
	defer resp.Body.Close()

	if !httpclient.IsSuccess(resp.StatusCode) {
		return httpclient.ParseResponseError(resp, serviceName)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(out); err != nil {
		return apperrors.ServiceUnavailable(serviceName, fmt.Errorf("decode %s: %w", target, err))
	}
	return nil
}

func toDomain(p productDTO, list reviewListDTO) *domain.Product {
	out := &domain.Product{
		ID:           p.ID,
		Name:         p.Name,
		Image:        primaryImage(p.Images),
		Description:  p.Description,
		Price:        p.BasePrice,
		Currency:     p.Currency,
		Rating:       list.Summary.AverageRating,
		NumReviews:   list.Summary.TotalCount,
		CountInStock: max(p.StockQuantity, 0),
		Reviews:      make([]domain.Review, 0, len(list.Data)),
	}
	for _, r := range list.Data {
		name := r.UserName
		if name == "" {
			name = "Anonymous"
		}
		comment := r.Body
		if comment == "" {
			comment = r.Title
		}
		out.Reviews = append(out.Reviews, domain.Review{
			ID:        r.ID,
			ProductID: p.ID,
			Name:      name,
			Rating:    r.Rating,
			Comment:   comment,
			CreatedAt: r.CreatedAt,
		})
	}
	if out.NumReviews == 0 {
		out.NumReviews = len(out.Reviews)
	}
	return out
}

func primaryImage(images []imageDTO) string {
	if len(images) == 0 {
		return ""
	}
	best := images[0]
	for _, img := range images[1:] {
		if (img.IsPrimary && !best.IsPrimary) || (img.IsPrimary == best.IsPrimary && img.SortOrder < best.SortOrder) {
			best = img
		}
	}
	return best.URL
}
