// internal/logging/context.go
package logging

import (
	"context"
	"regexp"
	"sort"
	"unicode/utf8"

	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// BaggageFieldPrefix prefixes baggage members copied into log fields.
const BaggageFieldPrefix = "baggage."

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields := make([]zap.Field, 0, 8)

	// Trace correlation (from OpenTelemetry)
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
		// The otelzap core reads the context from this field to stamp the
		// OTel record with the span; encoders skip it.
		fields = append(fields, contextField(ctx))
	}

	// Baggage propagated by the caller
	members := baggage.FromContext(ctx).Members()
	if len(members) > 0 {
		sort.Slice(members, func(i, j int) bool { return members[i].Key() < members[j].Key() })
		for _, m := range members {
			fields = append(fields, zap.String(BaggageFieldPrefix+m.Key(), m.Value()))
		}
	}

	// Request ID
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}

// contextField carries ctx without rendering it.
func contextField(ctx context.Context) zap.Field {
	return zap.Field{Key: "ctx", Type: zapcore.SkipType, Interface: ctx}
}

type requestCtxKey struct{}

const maxIDLen = 128

// idPattern allows alphanumeric, hyphen, underscore
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// validID reports whether id is safe to attach to log lines.
func validID(id string) bool {
	return id != "" &&
		utf8.ValidString(id) &&
		len(id) <= maxIDLen &&
		idPattern.MatchString(id)
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithRequestID adds request ID to context.
// Request IDs may come from the X-Request-ID header, so invalid values are
// dropped and ctx is returned unchanged.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if !validID(requestID) {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// loggerCtxKey is the context key for Logger.
type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
