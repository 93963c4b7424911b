package middleware

import (
	"log/slog"
	"net/http"

	"github.com/cengoxius/ecommerce01/pkg/logger"
)

// RequestLogger puts base, annotated with the request fields already in
// context, where logger.FromContext finds it. It belongs after the
// middleware that set those fields: tracing, sessions and visits.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			next.ServeHTTP(w, r.WithContext(logger.NewContext(ctx, logger.WithContext(ctx, base))))
		})
	}
}
