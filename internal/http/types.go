package http

import (
	"encoding/json"

	"github.com/fyrsmithlabs/agecompute/internal/compute"
	"github.com/fyrsmithlabs/agecompute/internal/telemetry"
)

// ComputeRequest is the request body for POST /compute_average_age.
type ComputeRequest struct {
	Data []json.RawMessage `json:"data"`
}

// ComputeResponse is the response body for POST /compute_average_age.
type ComputeResponse struct {
	AverageAge compute.Average `json:"average_age"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string                 `json:"status"` // "ok" or "degraded"
	Service   string                 `json:"service"`
	Telemetry telemetry.HealthStatus `json:"telemetry"`
}
