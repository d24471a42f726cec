package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fyrsmithlabs/agecompute/internal/compute"
	httpserver "github.com/fyrsmithlabs/agecompute/internal/http"
	"github.com/fyrsmithlabs/agecompute/internal/propagation"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	instrumentationName = "github.com/fyrsmithlabs/agecompute/cmd/agectl"

	// computeSpanName names the client span wrapping a compute call.
	computeSpanName = "Compute Request"
)

// client talks to the agecompute HTTP API.
type client struct {
	baseURL string
	http    *http.Client
	tracer  trace.Tracer
}

// newClient returns a client whose requests carry trace context and baggage.
// A nil tp disables client spans.
func newClient(baseURL string, tp trace.TracerProvider, timeout time.Duration) *client {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}

	return &client{
		baseURL: baseURL,
		tracer:  tp.Tracer(instrumentationName),
		http: &http.Client{
			Timeout: timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithTracerProvider(tp),
				otelhttp.WithPropagators(propagation.Propagator()),
			),
		},
	}
}

// Average posts records and returns the server's average. The trace ID of the
// client span is returned even when the call fails.
func (c *client) Average(ctx context.Context, records []json.RawMessage, bag baggage.Baggage) (compute.Average, string, error) {
	ctx = baggage.ContextWithBaggage(ctx, bag)
	ctx, span := c.tracer.Start(ctx, computeSpanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(propagation.Attributes(bag)...),
		trace.WithAttributes(attribute.Int("compute.records", len(records))),
	)
	defer span.End()

	var traceID string
	if sc := span.SpanContext(); sc.IsValid() {
		traceID = sc.TraceID().String()
	}

	avg, err := c.average(ctx, records)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return compute.Average{}, traceID, err
	}

	span.SetAttributes(attribute.Float64("compute.average_age", avg.Float64()))
	return avg, traceID, nil
}

func (c *client) average(ctx context.Context, records []json.RawMessage) (compute.Average, error) {
	reqJSON, err := json.Marshal(httpserver.ComputeRequest{Data: records})
	if err != nil {
		return compute.Average{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + httpserver.ComputePath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqJSON))
	if err != nil {
		return compute.Average{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return compute.Average{}, fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return compute.Average{}, statusError(resp)
	}

	var out httpserver.ComputeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return compute.Average{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return out.AverageAge, nil
}

// Health fetches the server health report.
func (c *client) Health(ctx context.Context) (httpserver.HealthResponse, error) {
	url := c.baseURL + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return httpserver.HealthResponse{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return httpserver.HealthResponse{}, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return httpserver.HealthResponse{}, statusError(resp)
	}

	var health httpserver.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return httpserver.HealthResponse{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return health, nil
}

// apiError is a non-200 response from the server.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
}

// statusError turns a non-200 response into an *apiError carrying the
// server's message when the body is a JSON error.
func statusError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, err)
	}
	var e httpserver.ErrorResponse
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return &apiError{Status: resp.StatusCode, Message: e.Error}
	}
	return &apiError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

// readRecords reads records from the named file, or stdin when no file or
// "-" is given. Accepts a bare array or an object with a "data" array.
func readRecords(stdin io.Reader, args []string) ([]json.RawMessage, error) {
	var content []byte
	var err error

	if len(args) == 0 || args[0] == "-" {
		content, err = io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		content, err = os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", args[0], err)
		}
	}

	content = bytes.TrimSpace(content)
	if len(content) == 0 {
		return nil, errors.New("no records to send")
	}

	if content[0] == '[' {
		var records []json.RawMessage
		if err := json.Unmarshal(content, &records); err != nil {
			return nil, fmt.Errorf("invalid records: %w", err)
		}
		return records, nil
	}

	var req httpserver.ComputeRequest
	if err := json.Unmarshal(content, &req); err != nil {
		return nil, fmt.Errorf("invalid records: %w", err)
	}
	return req.Data, nil
}
