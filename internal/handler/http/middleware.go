package http

import (
	"context"
	"net/http"
	"time"

	"github.com/cengoxius/ecommerce01/internal/visit"
	"github.com/cengoxius/ecommerce01/pkg/logger"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

const visitKey contextKey = "visit"

// VisitCookie binds every request to a browser visit, issuing the visit
// cookie when the browser has none or presents one the registry no longer
// knows.
func VisitCookie(registry *visit.Registry, name string, ttl time.Duration, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if c, err := r.Cookie(name); err == nil {
				id = c.Value
			}

			v, created := registry.Acquire(id)
			if created || v.ID != id {
				http.SetCookie(w, &http.Cookie{
					Name:     name,
					Value:    v.ID,
					Path:     "/",
					MaxAge:   int(ttl.Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := context.WithValue(r.Context(), visitKey, v)
			ctx = logger.WithVisitID(ctx, v.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// visitFromContext returns the visit bound by VisitCookie.
func visitFromContext(ctx context.Context) (*visit.Visit, bool) {
	v, ok := ctx.Value(visitKey).(*visit.Visit)
	return v, ok && v != nil
}
