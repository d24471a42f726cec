package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/fyrsmithlabs/agecompute/internal/propagation"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Telemetry owns the tracer, meter and logger providers for the process.
//
// Telemetry failures do not crash the application; a signal whose exporter
// cannot be built is left on the no-op global and the instance reports
// itself degraded.
type Telemetry struct {
	config *Config

	tracerProvider *trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	loggerProvider *sdklog.LoggerProvider
	metricsHandler http.Handler

	// Health tracking
	healthy  atomic.Bool
	degraded atomic.Bool

	mu      sync.Mutex
	reasons []string

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a new Telemetry instance and initializes providers.
//
// Each provider is registered as the process-wide global for its signal,
// along with the W3C trace context and baggage propagator. Calling New again
// replaces those globals.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	t := &Telemetry{
		config: cfg,
	}
	t.healthy.Store(true)

	otel.SetTextMapPropagator(propagation.Propagator())

	if !cfg.Enabled {
		return t, nil
	}

	res, err := newResource(cfg)
	if err != nil {
		t.setDegraded("resource creation failed: %v", err)
		return t, nil
	}

	if cfg.Traces.Enabled {
		t.initTraces(ctx, cfg, res, o)
	}
	if cfg.Metrics.Enabled {
		t.initMetrics(ctx, cfg, res, o)
	}
	if cfg.Logs.Enabled {
		t.initLogs(ctx, cfg, res, o)
	}

	return t, nil
}

func (t *Telemetry) initTraces(ctx context.Context, cfg *Config, res *resource.Resource, o *options) {
	exporter := o.spanExporter
	if exporter == nil {
		var err error
		exporter, err = newSpanExporter(ctx, cfg)
		if err != nil {
			t.setDegraded("trace exporter failed: %v", err)
			return
		}
	}
	t.tracerProvider = newTracerProvider(cfg, res, exporter)
	otel.SetTracerProvider(t.tracerProvider)
}

func (t *Telemetry) initMetrics(ctx context.Context, cfg *Config, res *resource.Resource, o *options) {
	var readers []sdkmetric.Reader

	if o.metricReader != nil {
		readers = append(readers, o.metricReader)
	} else if exporter, err := newMetricExporter(ctx, cfg); err != nil {
		t.setDegraded("metric exporter failed: %v", err)
	} else {
		readers = append(readers, newPeriodicReader(cfg, exporter))
	}

	if cfg.Metrics.Prometheus {
		reader, handler, err := newPrometheusReader()
		if err != nil {
			t.setDegraded("%v", err)
		} else {
			readers = append(readers, reader)
			t.metricsHandler = handler
		}
	}

	if len(readers) == 0 {
		return
	}

	t.meterProvider = newMeterProvider(res, readers...)
	otel.SetMeterProvider(t.meterProvider)

	if cfg.Metrics.Runtime {
		if err := runtime.Start(runtime.WithMeterProvider(t.meterProvider)); err != nil {
			t.setDegraded("runtime metrics failed: %v", err)
		}
	}
}

func (t *Telemetry) initLogs(ctx context.Context, cfg *Config, res *resource.Resource, o *options) {
	exporter := o.logExporter
	if exporter == nil {
		var err error
		exporter, err = newLogExporter(ctx, cfg)
		if err != nil {
			t.setDegraded("log exporter failed: %v", err)
			return
		}
	}
	t.loggerProvider = newLoggerProvider(res, exporter)
	global.SetLoggerProvider(t.loggerProvider)
}

// Tracer returns a tracer for the given instrumentation scope.
//
// Falls back to the global provider if traces are disabled or degraded.
func (t *Telemetry) Tracer(name string, opts ...oteltrace.TracerOption) oteltrace.Tracer {
	if t == nil || t.tracerProvider == nil {
		return otel.GetTracerProvider().Tracer(name, opts...)
	}
	return t.tracerProvider.Tracer(name, opts...)
}

// TracerProvider returns the tracer provider, or the global one if traces
// are disabled or degraded.
func (t *Telemetry) TracerProvider() oteltrace.TracerProvider {
	if t == nil || t.tracerProvider == nil {
		return otel.GetTracerProvider()
	}
	return t.tracerProvider
}

// Meter returns a meter for the given instrumentation scope.
//
// Falls back to the global provider if metrics are disabled or degraded.
func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if t == nil || t.meterProvider == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return t.meterProvider.Meter(name, opts...)
}

// LoggerProvider returns the log provider for the zap bridge, or nil if
// log export is not configured.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if t == nil || t.loggerProvider == nil {
		return nil
	}
	return t.loggerProvider
}

// MetricsHandler returns the Prometheus scrape handler, or nil if the pull
// exporter is disabled.
func (t *Telemetry) MetricsHandler() http.Handler {
	if t == nil {
		return nil
	}
	return t.metricsHandler
}

// Shutdown flushes and shuts down all telemetry providers.
//
// Only the first call does any work; later calls return its result. Uses the
// shutdown timeout from config when ctx has no deadline.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	t.shutdownOnce.Do(func() {
		t.shutdownErr = t.shutdown(ctx)
	})
	return t.shutdownErr
}

func (t *Telemetry) shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok && t.config != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.Shutdown.Timeout.Duration())
		defer cancel()
	}

	var errs []error

	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
		}
	}

	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	if t.loggerProvider != nil {
		if err := t.loggerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("logger provider shutdown: %w", err))
		}
	}

	t.healthy.Store(false)
	return errors.Join(errs...)
}

// ForceFlush immediately exports all pending telemetry data.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if t == nil {
		return nil
	}

	var errs []error

	if t.tracerProvider != nil {
		if err := t.tracerProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace flush: %w", err))
		}
	}

	if t.meterProvider != nil {
		if err := t.meterProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter flush: %w", err))
		}
	}

	if t.loggerProvider != nil {
		if err := t.loggerProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("logger flush: %w", err))
		}
	}

	return errors.Join(errs...)
}

// HealthStatus is a snapshot of telemetry health.
type HealthStatus struct {
	Healthy  bool     `json:"healthy"`
	Degraded bool     `json:"degraded"`
	Reasons  []string `json:"reasons,omitempty"`
}

// Health returns the current telemetry health status.
func (t *Telemetry) Health() HealthStatus {
	if t == nil {
		return HealthStatus{Healthy: false, Degraded: true}
	}
	t.mu.Lock()
	reasons := append([]string(nil), t.reasons...)
	t.mu.Unlock()
	return HealthStatus{
		Healthy:  t.healthy.Load(),
		Degraded: t.degraded.Load(),
		Reasons:  reasons,
	}
}

// IsEnabled returns true if telemetry is enabled and healthy.
func (t *Telemetry) IsEnabled() bool {
	if t == nil || t.config == nil {
		return false
	}
	return t.config.Enabled && t.healthy.Load()
}

// Config returns the configuration the instance was built from.
func (t *Telemetry) Config() *Config {
	if t == nil {
		return nil
	}
	return t.config
}

// setDegraded marks telemetry as degraded and records why.
func (t *Telemetry) setDegraded(format string, args ...interface{}) {
	t.degraded.Store(true)
	t.mu.Lock()
	t.reasons = append(t.reasons, fmt.Sprintf(format, args...))
	t.mu.Unlock()
}
