// Package telemetry provides OpenTelemetry instrumentation for agecompute.
package telemetry

import (
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/agecompute/internal/config"
)

// Supported OTLP protocols.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http/protobuf"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool                     `koanf:"enabled"`
	Endpoint       string                   `koanf:"endpoint"`
	Protocol       string                   `koanf:"protocol"`
	ServiceName    string                   `koanf:"service_name"`
	ServiceVersion string                   `koanf:"service_version"`
	Insecure       bool                     `koanf:"insecure"` // Use insecure connection (no TLS)
	TLSSkipVerify  bool                     `koanf:"tls_skip_verify"`
	Headers        map[string]config.Secret `koanf:"headers"`
	Sampling       SamplingConfig           `koanf:"sampling"`
	Traces         TracesConfig             `koanf:"traces"`
	Metrics        MetricsConfig            `koanf:"metrics"`
	Logs           LogsConfig               `koanf:"logs"`
	Shutdown       ShutdownConfig           `koanf:"shutdown"`
}

// SamplingConfig controls trace sampling behavior.
type SamplingConfig struct {
	Rate float64 `koanf:"rate"` // 0.0-1.0, default 1.0
}

// TracesConfig controls trace export.
type TracesConfig struct {
	Enabled bool `koanf:"enabled"`
}

// MetricsConfig controls metrics export.
type MetricsConfig struct {
	Enabled        bool            `koanf:"enabled"`
	ExportInterval config.Duration `koanf:"export_interval"`
	Prometheus     bool            `koanf:"prometheus"` // Also serve a pull endpoint
	Runtime        bool            `koanf:"runtime"`    // Go runtime metrics
}

// LogsConfig controls log record export.
type LogsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// ShutdownConfig controls graceful shutdown behavior.
type ShutdownConfig struct {
	Timeout config.Duration `koanf:"timeout"`
}

// NewDefaultConfig returns telemetry defaults matching a collector sidecar
// listening on the standard OTLP gRPC port.
func NewDefaultConfig() *Config {
	return &Config{
		Enabled:        true,
		Endpoint:       "localhost:4317",
		Protocol:       ProtocolGRPC,
		ServiceName:    "compute-service",
		ServiceVersion: "0.1.0",
		Insecure:       true,
		Sampling: SamplingConfig{
			Rate: 1.0,
		},
		Traces: TracesConfig{
			Enabled: true,
		},
		Metrics: MetricsConfig{
			Enabled:        true,
			ExportInterval: config.Duration(10 * time.Second),
			Runtime:        true,
		},
		Logs: LogsConfig{
			Enabled: true,
		},
		Shutdown: ShutdownConfig{
			Timeout: config.Duration(5 * time.Second),
		},
	}
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil // No validation needed if disabled
	}

	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when telemetry is enabled")
	}

	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required when telemetry is enabled")
	}

	switch c.Protocol {
	case "", ProtocolGRPC, ProtocolHTTP:
	default:
		return fmt.Errorf("protocol must be %q or %q, got %q", ProtocolGRPC, ProtocolHTTP, c.Protocol)
	}

	if c.Sampling.Rate < 0 || c.Sampling.Rate > 1 {
		return fmt.Errorf("sampling.rate must be between 0 and 1, got %f", c.Sampling.Rate)
	}

	if c.Metrics.Enabled && c.Metrics.ExportInterval.Duration() <= 0 {
		return fmt.Errorf("metrics.export_interval must be positive when metrics enabled")
	}

	if c.Shutdown.Timeout.Duration() <= 0 {
		return fmt.Errorf("shutdown.timeout must be positive")
	}

	return nil
}

// Warnings reports settings that are valid but worth surfacing at startup.
func (c *Config) Warnings() []string {
	if !c.Enabled {
		return nil
	}
	var warnings []string
	if c.Insecure && !c.isLocalEndpoint() {
		warnings = append(warnings, fmt.Sprintf("exporting telemetry to remote endpoint %s without TLS", c.Endpoint))
	}
	if !c.Insecure && c.TLSSkipVerify {
		warnings = append(warnings, "TLS certificate verification disabled for telemetry exporter")
	}
	return warnings
}

// protocol returns the configured protocol, defaulting to gRPC.
func (c *Config) protocol() string {
	if c.Protocol == "" {
		return ProtocolGRPC
	}
	return c.Protocol
}

// headers returns exporter headers with secrets revealed.
func (c *Config) headers() map[string]string {
	if len(c.Headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(c.Headers))
	for k, v := range c.Headers {
		out[k] = v.Value()
	}
	return out
}

// isLocalEndpoint checks if the endpoint is a local address.
func (c *Config) isLocalEndpoint() bool {
	host := stripScheme(c.Endpoint)
	full := host

	// Handle IPv6 addresses (may be bracketed like [::1]:4317)
	if strings.HasPrefix(host, "[") {
		if idx := strings.Index(host, "]:"); idx != -1 {
			host = host[1:idx]
		} else if strings.HasSuffix(host, "]") {
			host = host[1 : len(host)-1]
		}
	} else if strings.Count(host, ":") == 1 {
		host = host[:strings.LastIndex(host, ":")]
	}

	return host == "localhost" ||
		host == "::1" ||
		strings.HasPrefix(host, "127.") ||
		strings.HasPrefix(full, "::1")
}
