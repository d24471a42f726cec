package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/agecompute/internal/logging"
	"github.com/fyrsmithlabs/agecompute/internal/telemetry"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestHTTPMetrics_MetricsMiddleware(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))

	m := NewHTTPMetrics(mp.Meter(httpInstrumentationName), logging.NewNop())

	// Create Echo instance with middleware
	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "hello")
	})
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST(ComputePath, func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]float64{"average_age": 1})
	})

	// Make test requests
	for _, r := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/test", nil),
		httptest.NewRequest(http.MethodGet, "/health", nil),
		httptest.NewRequest(http.MethodPost, ComputePath, nil),
	} {
		e.ServeHTTP(httptest.NewRecorder(), r)
	}

	// Collect metrics
	ctx := context.Background()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}

	foundRequests := false
	foundDuration := false
	foundResponseSize := false
	foundActive := false

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case "agecompute.http.requests_total":
				foundRequests = true
				if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
					total := int64(0)
					for _, dp := range sum.DataPoints {
						total += dp.Value
					}
					if total != 3 {
						t.Errorf("expected 3 requests, got %d", total)
					}
				}
			case "agecompute.http.request_duration_seconds":
				foundDuration = true
				if hist, ok := m.Data.(metricdata.Histogram[float64]); ok {
					total := uint64(0)
					for _, dp := range hist.DataPoints {
						total += dp.Count
					}
					if total != 3 {
						t.Errorf("expected 3 duration recordings, got %d", total)
					}
				}
			case "agecompute.http.response_size_bytes":
				foundResponseSize = true
			case "agecompute.http.active_requests":
				foundActive = true
				if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
					for _, dp := range sum.DataPoints {
						if dp.Value != 0 {
							t.Errorf("expected no active requests, got %d", dp.Value)
						}
					}
				}
			}
		}
	}

	if !foundRequests {
		t.Error("requests counter not found")
	}
	if !foundDuration {
		t.Error("duration histogram not found")
	}
	if !foundResponseSize {
		t.Error("response size histogram not found")
	}
	if !foundActive {
		t.Error("active requests gauge not found")
	}
}

func TestHTTPMetrics_ActiveRequestsReleasedOnPanic(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	m := NewHTTPMetrics(mp.Meter(httpInstrumentationName), nil)

	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if recover() != nil {
					err = echo.ErrInternalServerError
				}
			}()
			return next(c)
		}
	})
	e.Use(m.MetricsMiddleware())
	e.GET("/boom", func(echo.Context) error { panic("boom") })

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "agecompute.http.active_requests" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				if dp.Value != 0 {
					t.Errorf("active requests leaked: %d", dp.Value)
				}
			}
		}
	}
}

// The server commits handler errors before the metrics middleware reads the
// status, so rejected requests are labeled 400 rather than 200.
func TestServer_HTTPMetricsRecordErrorStatus(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	server, err := NewServer(tel.Telemetry, logging.NewNop(), nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	for _, body := range []string{`{"data":[]}`, `{"data":[{"age":1}]}`} {
		req := httptest.NewRequest(http.MethodPost, ComputePath, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		server.ServeHTTP(httptest.NewRecorder(), req)
	}

	got := map[int64]int64{}
	for _, dp := range tel.CounterPoints(t, "agecompute.http.requests_total") {
		status, ok := dp.Attributes.Value(attribute.Key("status"))
		if !ok {
			t.Fatalf("data point missing status: %v", dp.Attributes)
		}
		endpoint, _ := dp.Attributes.Value(attribute.Key("endpoint"))
		if endpoint.AsString() != ComputePath {
			t.Errorf("endpoint = %q, want %q", endpoint.AsString(), ComputePath)
		}
		got[status.AsInt64()] += dp.Value
	}

	if got[http.StatusBadRequest] != 1 {
		t.Errorf("expected one 400, got %v", got)
	}
	if got[http.StatusOK] != 1 {
		t.Errorf("expected one 200, got %v", got)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "unmatched"},
		{"/*", "unmatched"},
		{"/health", "/health"},
		{ComputePath, ComputePath},
		{"/metrics", "/metrics"},
	}

	for _, tt := range tests {
		result := normalizePath(tt.input)
		if result != tt.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
