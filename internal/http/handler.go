package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/fyrsmithlabs/agecompute/internal/compute"
	"github.com/fyrsmithlabs/agecompute/internal/logging"
	"github.com/fyrsmithlabs/agecompute/internal/propagation"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// ComputePath is the averaging endpoint.
	ComputePath = "/compute_average_age"

	// SpanName names the span opened for each compute request.
	SpanName = "compute_average_age"

	// RequestCountMetric counts compute requests, valid or not.
	RequestCountMetric = "app_compute_request_count"
)

func newRequestCounter(meter metric.Meter) (metric.Int64Counter, error) {
	return meter.Int64Counter(
		RequestCountMetric,
		metric.WithDescription("Counts the requests to compute-service"),
		metric.WithUnit("1"),
	)
}

// handleComputeAverageAge averages the ages in the request body.
//
// The counter is incremented before any validation, and the span covers
// the whole request including rejected input. The body limit is enforced
// here rather than in middleware so oversized requests are counted too.
func (s *Server) handleComputeAverageAge(c echo.Context) error {
	ctx := c.Request().Context()
	attrs := propagation.Attributes(baggage.FromContext(ctx))

	s.requestCount.Add(ctx, 1, metric.WithAttributes(attrs...))

	ctx, span := s.tracer.Start(ctx, SpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	logger := logging.FromContext(ctx)
	logger.Info(ctx, "compute request in progress")

	if s.bodyLimit > 0 {
		r := c.Request()
		if r.ContentLength > s.bodyLimit {
			return s.rejectTooLarge(ctx, span, &http.MaxBytesError{Limit: s.bodyLimit})
		}
		r.Body = http.MaxBytesReader(c.Response(), r.Body, s.bodyLimit)
	}

	var req ComputeRequest
	if err := c.Bind(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return s.rejectTooLarge(ctx, span, err)
		}
		return s.reject(ctx, span, err, http.StatusBadRequest, "invalid request body")
	}
	logger.Trace(ctx, "compute request decoded", zap.Int("records", len(req.Data)))

	avg, err := compute.AverageAge(req.Data)
	if err != nil {
		if !compute.IsClientError(err) {
			return err
		}
		return s.reject(ctx, span, err, http.StatusBadRequest, clientMessage(err))
	}

	span.SetAttributes(
		attribute.Int("compute.records", len(req.Data)),
		attribute.Float64("compute.average_age", avg.Float64()),
	)

	return c.JSON(http.StatusOK, ComputeResponse{AverageAge: avg})
}

// reject answers code with msg. Bad input is the caller's fault, so the span
// gets an event but keeps an unset status. ctx must carry the handler span.
func (s *Server) reject(ctx context.Context, span trace.Span, err error, code int, msg string) error {
	span.AddEvent("request rejected", trace.WithAttributes(
		attribute.String("reason", msg),
		attribute.Int("http.response.status_code", code),
	))
	logging.FromContext(ctx).Warn(ctx, "compute request rejected", zap.String("reason", msg), zap.Error(err))
	return echo.NewHTTPError(code, msg)
}

func (s *Server) rejectTooLarge(ctx context.Context, span trace.Span, err error) error {
	return s.reject(ctx, span, err, http.StatusRequestEntityTooLarge,
		http.StatusText(http.StatusRequestEntityTooLarge))
}

// clientMessage maps a compute error to its wire message.
func clientMessage(err error) string {
	for _, sentinel := range []error{compute.ErrNoData, compute.ErrNoAgeData, compute.ErrInvalidAge} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

// handleHealth reports service and telemetry health.
func (s *Server) handleHealth(c echo.Context) error {
	health := s.telemetry.Health()
	status := "ok"
	if health.Degraded {
		status = "degraded"
	}
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    status,
		Service:   s.telemetry.Config().ServiceName,
		Telemetry: health,
	})
}
