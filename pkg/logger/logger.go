package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

type ctxKey int

const (
	correlationIDKey ctxKey = iota
	originKey
	loggerKey
)

// Origins identify how a mutation reached the search engine.
const (
	OriginHTTP    = "http"
	OriginEvent   = "event"
	OriginReindex = "reindex"
)

// New returns a JSON logger on stdout tagged with serviceName.
func New(serviceName, level string) *slog.Logger {
	return NewWithWriter(serviceName, level, os.Stdout)
}

// NewWithWriter is New writing to w. Debug level also records the source
// location of each entry.
func NewWithWriter(serviceName, level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl, AddSource: lvl <= slog.LevelDebug})
	return slog.New(h).With(slog.String("service", serviceName))
}

// ParseLevel accepts the slog level names (case-insensitive, with optional
// offsets such as "warn+2") and "warning". Anything else is info.
func ParseLevel(level string) slog.Level {
	level = strings.TrimSpace(level)
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// WithCorrelationID stores the request's correlation ID in ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext returns the ID stored by WithCorrelationID, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// WithOrigin tags ctx with the channel a mutation arrived through
// (OriginHTTP, OriginEvent, OriginReindex).
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originKey, origin)
}

// OriginFromContext returns the origin stored by WithOrigin, or "".
func OriginFromContext(ctx context.Context) string {
	o, _ := ctx.Value(originKey).(string)
	return o
}

// NewContext stores a request-scoped logger in ctx.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger stored by NewContext, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// WithContext returns l annotated with whatever ctx carries among
// correlation_id, origin and the active span's trace_id and span_id.
func WithContext(ctx context.Context, l *slog.Logger) *slog.Logger {
	if attrs := contextAttrs(ctx); len(attrs) > 0 {
		return l.With(attrs...)
	}
	return l
}

func contextAttrs(ctx context.Context) []any {
	var attrs []any
	if id := CorrelationIDFromContext(ctx); id != "" {
		attrs = append(attrs, slog.String("correlation_id", id))
	}
	if o := OriginFromContext(ctx); o != "" {
		attrs = append(attrs, slog.String("origin", o))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return attrs
}
