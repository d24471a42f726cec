// Package telemetry provides OpenTelemetry instrumentation for agecompute.
//
// # Overview
//
// Telemetry builds one provider per signal (traces, metrics, logs) from a
// single Config, exports them over OTLP to a collector and registers each as
// the process-wide global together with the W3C trace context and baggage
// propagator.
//
// # Usage
//
//	cfg := telemetry.NewDefaultConfig()
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx, span := tel.Tracer("agecompute").Start(ctx, "compute_average_age")
//	defer span.End()
//
//	counter, _ := tel.Meter("agecompute").Int64Counter("app_compute_request_count")
//	counter.Add(ctx, 1)
//
// # Configuration
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc          # or http/protobuf
//	  insecure: true
//	  service_name: "compute-service"
//	  metrics:
//	    export_interval: "10s"
//	    prometheus: false     # serve /metrics as well
//	    runtime: true
//
// # Error Handling
//
// Telemetry failures do not crash the application. A signal whose exporter
// cannot be built stays on the no-op global and Health reports why.
//
// # Testing
//
//	tt := telemetry.NewTestTelemetry()
//	_, span := tt.Tracer("test").Start(ctx, "test-span")
//	span.End()
//	tt.AssertSpanExists(t, "test-span")
package telemetry
