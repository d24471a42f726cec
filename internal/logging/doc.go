// Package logging provides structured logging with OpenTelemetry integration.
//
// # Overview
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Dual output (stdout + OpenTelemetry logs via the otelzap bridge)
//   - Automatic context field injection (trace_id, span_id, baggage, request.id)
//   - Level-aware sampling (errors never sampled)
//
// # Usage
//
// Create logger from config:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, tel.LoggerProvider())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Log with context:
//
//	ctx, span := tracer.Start(ctx, "compute_average_age")
//	defer span.End()
//	logger.Info(ctx, "compute request in progress")
//
// Output includes automatic correlation:
//
//	{
//	  "ts": "2025-11-24T10:15:30Z",
//	  "level": "info",
//	  "msg": "compute request in progress",
//	  "trace_id": "4bf92f3577b34da6a3ce929d0e0e4736",
//	  "span_id": "00f067aa0ba902b7",
//	  "baggage.user.id": "12345",
//	  "request.id": "9f1c..."
//	}
//
// When the OTel output is enabled the same entry is emitted as an OTel log
// record carrying the span's trace and span IDs.
//
// # Sampling
//
// Entries below error level are sampled per message: the first Initial per
// Tick pass, then every Thereafter-th. Error and above always pass.
//
// # Testing
//
// Use TestLogger for test assertions:
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertField(t, "test message", "key", "value")
package logging
