package httpclient

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned while a service's breaker rejects calls.
var ErrCircuitOpen = gobreaker.ErrOpenState

// BreakerConfig decides when an upstream is considered down.
type BreakerConfig struct {
	// HalfOpenCalls is how many calls may go through while half-open.
	HalfOpenCalls uint32
	// Window is how often counts reset while closed.
	Window time.Duration
	// Cooldown is how long the breaker stays open.
	Cooldown time.Duration
	// TripRatio of failed calls opens the breaker once MinCalls is reached.
	TripRatio float64
	MinCalls  uint32
}

// DefaultBreakerConfig opens after half of at least five calls fail.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		HalfOpenCalls: 1,
		Window:        time.Minute,
		Cooldown:      15 * time.Second,
		TripRatio:     0.5,
		MinCalls:      5,
	}
}

var upstreamBreakerState = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "storefront_upstream_breaker_state",
		Help: "Breaker state per backend service (0=closed, 1=half-open, 2=open)",
	},
	[]string{"service"},
)

func init() {
	prometheus.MustRegister(upstreamBreakerState)
}

func newBreaker(service string, cfg BreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[*http.Response] {
	gauge := upstreamBreakerState.WithLabelValues(service)
	gauge.Set(stateValue(gobreaker.StateClosed))

	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        service,
		MaxRequests: cfg.HalfOpenCalls,
		Interval:    cfg.Window,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= cfg.MinCalls &&
				float64(c.TotalFailures) >= cfg.TripRatio*float64(c.Requests)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("upstream breaker changed state",
				slog.String("service", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			gauge.Set(stateValue(to))
		},
	})
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
