package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/cengoxius/ecommerce01/pkg/logger"
)

// Retry bounds how reads are repeated. Attempts counts the first try.
type Retry struct {
	Attempts int
	MinWait  time.Duration
	MaxWait  time.Duration
}

// wait is the backoff before the given retry (1 for the first retry).
func (r Retry) wait(retry int) time.Duration {
	d := r.MinWait << (retry - 1)
	if d <= 0 || d > r.MaxWait {
		return r.MaxWait
	}
	return d
}

// Config configures an Upstream.
type Config struct {
	Timeout         time.Duration
	MaxConnsPerHost int
	Retry           Retry
	Breaker         BreakerConfig
}

// DefaultConfig returns budgets for a backend the storefront renders from.
// Page requests wait on these calls, so they are short.
func DefaultConfig() Config {
	return Config{
		Timeout:         5 * time.Second,
		MaxConnsPerHost: 100,
		Retry:           Retry{Attempts: 3, MinWait: 100 * time.Millisecond, MaxWait: time.Second},
		Breaker:         DefaultBreakerConfig(),
	}
}

// Upstream is the HTTP client for one backend service. Reads are retried;
// every call goes through the service's circuit breaker.
type Upstream struct {
	name    string
	hc      *http.Client
	retry   Retry
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

// NewUpstream creates the client for the service called name. The name
// labels its logs and breaker metrics.
func NewUpstream(name string, cfg Config, logger *slog.Logger) *Upstream {
	if cfg.Retry.Attempts < 1 {
		cfg.Retry.Attempts = 1
	}
	return &Upstream{
		name: name,
		hc: &http.Client{
			Transport: newTransport(cfg.MaxConnsPerHost),
			Timeout:   cfg.Timeout,
		},
		retry:   cfg.Retry,
		breaker: newBreaker(name, cfg.Breaker, logger),
	}
}

func newTransport(maxConns int) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   3 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        maxConns,
		MaxIdleConnsPerHost: maxConns,
		MaxConnsPerHost:     maxConns,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 3 * time.Second,
	}
}

// Name returns the service name.
func (u *Upstream) Name() string { return u.name }

// State returns the breaker state.
func (u *Upstream) State() gobreaker.State { return u.breaker.State() }

// Do sends req. A 5xx left after retries counts against the breaker and
// comes back as an error; 4xx responses are returned for the caller to
// decode. While the breaker is open Do fails with ErrCircuitOpen.
func (u *Upstream) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	propagate(ctx, req.Header)

	return u.breaker.Execute(func() (*http.Response, error) {
		resp, err := u.send(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
			_ = resp.Body.Close()
			return nil, fmt.Errorf("%s: server error %d: %s", u.name, resp.StatusCode, body)
		}
		return resp, nil
	})
}

// Get sends a GET for url.
func (u *Upstream) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", u.name, err)
	}
	return u.Do(ctx, req)
}

// send performs the request, repeating GET and HEAD on network errors and
// retryable statuses. Anything else, a review post included, goes once.
func (u *Upstream) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	attempts := 1
	if req.Method == http.MethodGet || req.Method == http.MethodHead {
		attempts = u.retry.Attempts
	}

	for attempt := 1; ; attempt++ {
		resp, err := u.hc.Do(req)
		last := attempt == attempts
		switch {
		case err != nil && (last || !retryable(err)):
			return nil, fmt.Errorf("%s: request failed after %d attempt(s): %w", u.name, attempt, err)
		case err == nil && (last || !retryableStatus(resp.StatusCode)):
			return resp, nil
		case err == nil:
			_ = resp.Body.Close()
		}

		select {
		case <-time.After(u.retry.wait(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// propagate copies the trace context and correlation id onto outgoing
// headers.
func propagate(ctx context.Context, h http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(h))
	if id := logger.CorrelationIDFromContext(ctx); id != "" && h.Get("X-Correlation-ID") == "" {
		h.Set("X-Correlation-ID", id)
	}
}

func retryableStatus(status int) bool {
	return status >= http.StatusInternalServerError && status != http.StatusNotImplemented
}

// retryable reports whether err is a network error worth another try.
// Cancellation and deadlines never are.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
