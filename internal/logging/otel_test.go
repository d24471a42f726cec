package logging

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

type memoryLogExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *memoryLogExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *memoryLogExporter) Shutdown(context.Context) error   { return nil }
func (e *memoryLogExporter) ForceFlush(context.Context) error { return nil }

func (e *memoryLogExporter) Records() []sdklog.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]sdklog.Record(nil), e.records...)
}

func TestNewDualCore_StdoutOnly(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.Stdout = true
	cfg.Output.OTEL = false

	core, err := newDualCore(cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, core)
}

func TestNewDualCore_BothOutputs(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.Stdout = true
	cfg.Output.OTEL = true

	// Nil provider skips the OTel output.
	core, err := newDualCore(cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, core)
}

func TestNewDualCore_NoOutputs(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.Stdout = false
	cfg.Output.OTEL = false

	_, err := newDualCore(cfg, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "at least one output")
}

func TestNewDualCore_OTELOnlyWithoutProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.Stdout = false
	cfg.Output.OTEL = true

	_, err := newDualCore(cfg, nil)
	assert.Error(t, err)
}

func TestLogger_OTELRecordCorrelation(t *testing.T) {
	exporter := &memoryLogExporter{}
	lp := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exporter)))
	t.Cleanup(func() { _ = lp.Shutdown(context.Background()) })

	cfg := NewDefaultConfig()
	cfg.Output.Stdout = false
	cfg.Sampling.Enabled = false
	logger, err := NewLogger(cfg, lp)
	require.NoError(t, err)

	tp := trace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "compute_average_age")
	logger.Info(ctx, "compute request in progress", zap.String("key", "value"))
	span.End()

	records := exporter.Records()
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "compute request in progress", r.Body().AsString())
	assert.Equal(t, otellog.SeverityInfo, r.Severity())
	assert.Equal(t, span.SpanContext().TraceID(), r.TraceID())
	assert.Equal(t, span.SpanContext().SpanID(), r.SpanID())

	var found bool
	r.WalkAttributes(func(kv otellog.KeyValue) bool {
		if kv.Key == "key" {
			found = kv.Value.AsString() == "value"
			return false
		}
		return true
	})
	assert.True(t, found, "zap field should become a record attribute")
}

func TestLogger_OTELRespectsLevel(t *testing.T) {
	exporter := &memoryLogExporter{}
	lp := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exporter)))
	t.Cleanup(func() { _ = lp.Shutdown(context.Background()) })

	cfg := NewDefaultConfig()
	cfg.Output.Stdout = false
	cfg.Sampling.Enabled = false
	logger, err := NewLogger(cfg, lp)
	require.NoError(t, err)

	logger.Debug(context.Background(), "below threshold")
	logger.Warn(context.Background(), "above threshold")

	records := exporter.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "above threshold", records[0].Body().AsString())
}
