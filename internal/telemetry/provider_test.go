package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewResource(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.ServiceVersion = "1.2.3"

	res, err := newResource(cfg)
	require.NoError(t, err)
	require.NotNil(t, res)

	attrs := map[string]string{}
	for _, attr := range res.Attributes() {
		attrs[string(attr.Key)] = attr.Value.AsString()
	}
	assert.Equal(t, "compute-service", attrs["service.name"])
	assert.Equal(t, "1.2.3", attrs["service.version"])
}

func TestOptions(t *testing.T) {
	o := &options{}
	assert.Nil(t, o.spanExporter)
	assert.Nil(t, o.metricReader)
	assert.Nil(t, o.logExporter)

	exp := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()
	logs := &InMemoryLogExporter{}

	WithTraceExporter(exp)(o)
	WithMetricReader(reader)(o)
	WithLogExporter(logs)(o)

	assert.Same(t, exp, o.spanExporter)
	assert.Same(t, reader, o.metricReader)
	assert.Same(t, logs, o.logExporter)
}

func TestStripScheme(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"localhost:4317", "localhost:4317"},
		{"http://otel-collector:4317", "otel-collector:4317"},
		{"https://otel.example.com:4318", "otel.example.com:4318"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripScheme(tt.in), tt.in)
	}
}

func TestNewExporters_BothProtocols(t *testing.T) {
	// OTLP exporters connect lazily, so construction succeeds without a collector.
	for _, protocol := range []string{ProtocolGRPC, ProtocolHTTP} {
		t.Run(protocol, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Protocol = protocol
			ctx := context.Background()

			spans, err := newSpanExporter(ctx, cfg)
			require.NoError(t, err)
			metrics, err := newMetricExporter(ctx, cfg)
			require.NoError(t, err)
			logs, err := newLogExporter(ctx, cfg)
			require.NoError(t, err)

			// Nothing was exported, so shutdown has nothing to send.
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			_ = spans.Shutdown(cancelled)
			_ = metrics.Shutdown(cancelled)
			_ = logs.Shutdown(cancelled)
		})
	}
}

func TestNewPrometheusReader(t *testing.T) {
	reader, handler, err := newPrometheusReader()
	require.NoError(t, err)
	require.NotNil(t, handler)

	res, err := newResource(NewDefaultConfig())
	require.NoError(t, err)
	mp := newMeterProvider(res, reader)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	counter, err := mp.Meter("test").Int64Counter("app_compute_request_count")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "app_compute_request_count")
}
