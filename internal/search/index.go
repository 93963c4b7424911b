package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/cengoxius/ecommerce01/pkg/errors"
	"github.com/cengoxius/ecommerce01/pkg/tracing"
)

const (
	serviceName = "search"

	// DefaultIndexName is the product index the search service maintains.
	DefaultIndexName = "ecommerce_products"

	// PerPage is the number of hits on one results page.
	PerPage = 20
	// MaxPage bounds deep pagination.
	MaxPage = 50

	statusPublished = "published"
)

// Hit is one product in a result list.
type Hit struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ImageURL  string `json:"image_url"`
	BasePrice int64  `json:"base_price"`
	Currency  string `json:"currency"`
}

// Result is one page of hits for a query.
type Result struct {
	Query   string `json:"query"`
	Hits    []Hit  `json:"hits"`
	Total   int    `json:"total"`
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
}

// Pages returns how many result pages the query has, capped at MaxPage.
func (r *Result) Pages() int {
	if r.PerPage < 1 {
		return 0
	}
	n := (r.Total + r.PerPage - 1) / r.PerPage
	return min(n, MaxPage)
}

// Index reads the product index. The search service owns the mapping and
// keeps the documents current; the storefront only queries it.
type Index struct {
	client *elasticsearch.Client
	name   string
	tracer trace.Tracer
	logger *slog.Logger
}

type esSearchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source Hit `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// New creates an index reader for the cluster at addr. An empty name uses
// DefaultIndexName.
func New(addr, name string, logger *slog.Logger) (*Index, error) {
	if name == "" {
		name = DefaultIndexName
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: create client: %w", err)
	}
	return &Index{
		client: client,
		name:   name,
		tracer: tracing.Tracer("storefront/search"),
		logger: logger,
	}, nil
}

// Ping checks whether the cluster is reachable.
func (i *Index) Ping(ctx context.Context) error {
	res, err := i.client.Ping(i.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

// Search returns the given page of published products matching q. A blank
// query matches nothing and does not reach the cluster.
func (i *Index) Search(ctx context.Context, q string, page int) (*Result, error) {
	q = strings.TrimSpace(q)
	page = min(max(page, 1), MaxPage)
	result := &Result{Query: q, Hits: []Hit{}, Page: page, PerPage: PerPage}
	if q == "" {
		return result, nil
	}

	ctx, span := i.tracer.Start(ctx, "search.Products",
		trace.WithAttributes(attribute.Int("search.page", page)),
	)
	defer span.End()

	body, err := json.Marshal(buildQuery(q, page))
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("marshal search query: %w", err))
	}

	res, err := i.client.Search(
		i.client.Search.WithContext(ctx),
		i.client.Search.WithIndex(i.name),
		i.client.Search.WithBody(bytes.NewReader(body)),
		i.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		tracing.Fail(span, err)
		return nil, apperrors.ServiceUnavailable(serviceName, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		var errResp esErrorResponse
		cause := fmt.Errorf("elasticsearch search: unexpected status %s", res.Status())
		if json.NewDecoder(res.Body).Decode(&errResp) == nil && errResp.Error.Type != "" {
			cause = fmt.Errorf("elasticsearch search: %s: %s", errResp.Error.Type, errResp.Error.Reason)
		}
		tracing.Fail(span, cause)
		return nil, apperrors.ServiceUnavailable(serviceName, cause)
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		tracing.Fail(span, err)
		return nil, apperrors.ServiceUnavailable(serviceName, fmt.Errorf("decode search response: %w", err))
	}

	for _, h := range esResp.Hits.Hits {
		result.Hits = append(result.Hits, h.Source)
	}
	result.Total = esResp.Hits.Total.Value
	span.SetAttributes(attribute.Int("search.total", result.Total))

	i.logger.DebugContext(ctx, "product search",
		slog.String("query", q),
		slog.Int("page", page),
		slog.Int("total", result.Total),
	)
	return result, nil
}

// buildQuery matches the text against the product fields, weighting the
// name highest, and keeps only published products.
func buildQuery(q string, page int) map[string]any {
	return map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": []any{
					map[string]any{
						"multi_match": map[string]any{
							"query":         q,
							"fields":        []string{"name^3", "description", "category_name", "brand_name"},
							"type":          "best_fields",
							"fuzziness":     "AUTO",
							"prefix_length": 1,
						},
					},
				},
				"filter": []any{
					map[string]any{"term": map[string]any{"status": statusPublished}},
				},
			},
		},
		"_source": []string{"id", "name", "image_url", "base_price", "currency"},
		"from":    (page - 1) * PerPage,
		"size":    PerPage,
	}
}
