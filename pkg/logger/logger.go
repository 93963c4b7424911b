package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// field is a request-scoped string that log lines carry under its own name.
type field string

const (
	correlationID field = "correlation_id"
	visitID       field = "visit_id"
	userID        field = "user_id"
)

// requestFields is the order fields appear in on a log line.
var requestFields = []field{correlationID, visitID, userID}

type loggerKey struct{}

// New creates a JSON logger for the named service writing to stdout.
func New(serviceName, level string) *slog.Logger {
	return NewWithWriter(serviceName, level, os.Stdout)
}

// NewWithWriter is New writing to w. Debug level adds source positions.
func NewWithWriter(serviceName, level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl <= slog.LevelDebug,
	})
	return slog.New(h).With(slog.String("service", serviceName))
}

// ParseLevel maps a level name onto a slog.Level; unknown names are info.
func ParseLevel(level string) slog.Level {
	var lvl slog.Level
	name := strings.ToLower(strings.TrimSpace(level))
	if name == "warning" {
		name = "warn"
	}
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func withField(ctx context.Context, f field, v string) context.Context {
	return context.WithValue(ctx, f, v)
}

func fieldFrom(ctx context.Context, f field) string {
	v, _ := ctx.Value(f).(string)
	return v
}

// WithCorrelationID returns a context carrying the request's correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return withField(ctx, correlationID, id)
}

// CorrelationIDFromContext returns the correlation ID, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	return fieldFrom(ctx, correlationID)
}

// WithVisitID returns a context carrying the storefront visit ID.
func WithVisitID(ctx context.Context, id string) context.Context {
	return withField(ctx, visitID, id)
}

// VisitIDFromContext returns the visit ID, or "".
func VisitIDFromContext(ctx context.Context) string {
	return fieldFrom(ctx, visitID)
}

// WithUserID returns a context carrying the signed-in user's ID.
func WithUserID(ctx context.Context, id string) context.Context {
	return withField(ctx, userID, id)
}

// UserIDFromContext returns the user ID, or "" for guests.
func UserIDFromContext(ctx context.Context) string {
	return fieldFrom(ctx, userID)
}

// NewContext stores l as the request logger.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the request logger, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// WithContext returns l annotated with every request field set in ctx and
// the active trace and span IDs.
func WithContext(ctx context.Context, l *slog.Logger) *slog.Logger {
	var attrs []any
	for _, f := range requestFields {
		if v := fieldFrom(ctx, f); v != "" {
			attrs = append(attrs, slog.String(string(f), v))
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}
