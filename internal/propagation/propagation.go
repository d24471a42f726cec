// Package propagation extracts and injects W3C trace context and baggage
// over HTTP headers.
package propagation

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	otelprop "go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/http/httpguts"
)

// Limits applied when baggage is turned into telemetry attributes.
const (
	MaxBaggageItems       = 64
	MaxBaggageKeyLength   = 128
	MaxBaggageValueLength = 512
)

// w3c handles the traceparent, tracestate and baggage headers.
var w3c = otelprop.NewCompositeTextMapPropagator(
	otelprop.TraceContext{},
	otelprop.Baggage{},
)

// Propagator returns the W3C trace context and baggage propagator used by
// Extract and Inject.
func Propagator() otelprop.TextMapPropagator {
	return w3c
}

// Carrier is what the caller propagated with a request.
type Carrier struct {
	SpanContext trace.SpanContext
	Baggage     baggage.Baggage
}

// HasParent reports whether a valid remote parent was received.
func (c Carrier) HasParent() bool {
	return c.SpanContext.IsValid()
}

// Extract reads trace context and baggage from headers into ctx.
//
// Missing or malformed headers yield an empty span context or empty baggage;
// extraction never fails.
func Extract(ctx context.Context, headers http.Header) (context.Context, Carrier) {
	ctx = w3c.Extract(ctx, otelprop.HeaderCarrier(headers))
	return ctx, Carrier{
		SpanContext: trace.SpanContextFromContext(ctx),
		Baggage:     baggage.FromContext(ctx),
	}
}

// Inject writes the span context and baggage carried by ctx into headers.
func Inject(ctx context.Context, headers http.Header) {
	w3c.Inject(ctx, otelprop.HeaderCarrier(headers))
}

// Fields returns the header names this package reads and writes.
func Fields() []string {
	return w3c.Fields()
}

// Attributes converts baggage into attributes keyed by the member key,
// sorted by key. Members whose key or value exceeds its length limit are
// dropped, as is everything past MaxBaggageItems. The baggage API already
// caps the encoded header at 8192 bytes.
func Attributes(b baggage.Baggage) []attribute.KeyValue {
	members := b.Members()
	if len(members) == 0 {
		return nil
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Key() < members[j].Key() })

	attrs := make([]attribute.KeyValue, 0, len(members))
	for _, m := range members {
		if len(attrs) >= MaxBaggageItems {
			break
		}
		key, value := m.Key(), m.Value()
		if len(key) > MaxBaggageKeyLength || len(value) > MaxBaggageValueLength {
			continue
		}
		attrs = append(attrs, attribute.String(key, value))
	}
	return attrs
}

// ParsePairs builds baggage from "key=value" strings. Keys must be HTTP
// tokens; the baggage propagator silently drops anything else.
func ParsePairs(pairs []string) (baggage.Baggage, error) {
	members := make([]baggage.Member, 0, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return baggage.Baggage{}, fmt.Errorf("baggage entry %q: want key=value", p)
		}
		if !httpguts.ValidHeaderFieldName(key) {
			return baggage.Baggage{}, fmt.Errorf("baggage entry %q: invalid key %q", p, key)
		}
		m, err := baggage.NewMemberRaw(key, strings.TrimSpace(value))
		if err != nil {
			return baggage.Baggage{}, fmt.Errorf("baggage entry %q: %w", p, err)
		}
		members = append(members, m)
	}
	b, err := baggage.New(members...)
	if err != nil {
		return baggage.Baggage{}, fmt.Errorf("building baggage: %w", err)
	}
	return b, nil
}

// Middleware extracts propagated context from every request and makes it
// the request context, so handlers start their spans as its children.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx, _ := Extract(req.Context(), req.Header)
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
