// internal/logging/testing.go
package logging

import (
	"reflect"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger wraps Logger with assertions on the fields ContextFields adds:
// trace and span IDs, baggage and request IDs.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger creates a logger for testing with full observation.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger: &Logger{
			zap:    zap.New(core),
			config: NewDefaultConfig(),
		},
		observed: observed,
	}
}

// All returns all logged entries.
func (t *TestLogger) All() []observer.LoggedEntry {
	return t.observed.All()
}

// FilterMessage returns entries matching message substring.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessage(msg)
}

// Reset clears all logged entries.
func (t *TestLogger) Reset() {
	t.observed.TakeAll()
}

// AssertLogged verifies a log at level containing message was logged.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	for _, entry := range t.observed.All() {
		if entry.Level == level && strings.Contains(entry.Message, msgContains) {
			return
		}
	}
	tb.Errorf("expected log at %v containing %q, logs: %+v", level, msgContains, t.observed.All())
}

// AssertNotLogged verifies no log at level containing message was logged.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	for _, entry := range t.observed.All() {
		if entry.Level == level && strings.Contains(entry.Message, msgContains) {
			tb.Errorf("unexpected log at %v containing %q", level, msgContains)
		}
	}
}

// AssertField verifies a field with key and value exists in message.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, expected interface{}) {
	tb.Helper()
	for _, entry := range t.observed.FilterMessage(msg).All() {
		for _, field := range entry.Context {
			if field.Key == key {
				if field.Type == zapcore.StringType && field.String == expected {
					return
				}
				if reflect.DeepEqual(field.Interface, expected) {
					return
				}
			}
		}
	}
	tb.Errorf("field %q=%v not found in message %q", key, expected, msg)
}

// AssertTraceCorrelation verifies trace_id present in message.
func (t *TestLogger) AssertTraceCorrelation(tb testing.TB, msg string) {
	tb.Helper()
	for _, entry := range t.observed.FilterMessage(msg).All() {
		for _, field := range entry.Context {
			if field.Key == "trace_id" {
				return
			}
		}
	}
	tb.Errorf("message %q missing trace_id", msg)
}

// stringFields returns the string fields of every entry matching msg.
func (t *TestLogger) stringFields(msg string) []map[string]string {
	var out []map[string]string
	for _, entry := range t.observed.FilterMessage(msg).All() {
		fields := make(map[string]string, len(entry.Context))
		for _, f := range entry.Context {
			if f.Type == zapcore.StringType {
				fields[f.Key] = f.String
			}
		}
		out = append(out, fields)
	}
	return out
}

// AssertSpanCorrelation verifies msg was logged with the trace and span IDs
// of sc.
func (t *TestLogger) AssertSpanCorrelation(tb testing.TB, msg string, sc trace.SpanContext) {
	tb.Helper()
	entries := t.stringFields(msg)
	for _, fields := range entries {
		if fields["trace_id"] == sc.TraceID().String() && fields["span_id"] == sc.SpanID().String() {
			return
		}
	}
	tb.Errorf("message %q not logged with trace_id=%s span_id=%s, got %v",
		msg, sc.TraceID(), sc.SpanID(), entries)
}

// AssertBaggage verifies msg was logged with baggage member key=value.
func (t *TestLogger) AssertBaggage(tb testing.TB, msg, key, value string) {
	tb.Helper()
	entries := t.stringFields(msg)
	for _, fields := range entries {
		if v, ok := fields[BaggageFieldPrefix+key]; ok && v == value {
			return
		}
	}
	tb.Errorf("message %q missing baggage %s=%s, got %v", msg, key, value, entries)
}
