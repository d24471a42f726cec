// Package main implements the agectl CLI for sending requests to the agecompute server.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fyrsmithlabs/agecompute/internal/propagation"
	"github.com/fyrsmithlabs/agecompute/internal/telemetry"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var version = "dev"

// defaultBaggage identifies the caller when --baggage is not given.
var defaultBaggage = []string{"user.id=12345", "user.name=john"}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type flags struct {
	serverURL    string
	otlpEndpoint string
	baggage      []string
	timeout      time.Duration
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:   "agectl",
		Short: "CLI for agecompute server operations",
		Long: `agectl is a command-line interface for the agecompute HTTP server.
Every request carries W3C trace context and baggage, so its spans join
the server's trace.`,
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&f.serverURL, "server", "http://localhost:5000", "agecompute server URL")
	root.PersistentFlags().StringVar(&f.otlpEndpoint, "otlp-endpoint", "", "OTLP gRPC endpoint for client spans (empty keeps spans local)")
	root.PersistentFlags().DurationVar(&f.timeout, "timeout", 30*time.Second, "request timeout")

	average := &cobra.Command{
		Use:   "average [file]",
		Short: "Compute the average age of records in a file or stdin",
		Long: `Send records to the server and print their average age.

Input is either a JSON array of records or an object with a "data" array.

Examples:
  # Average a file
  agectl average people.json

  # Average from stdin
  echo '[{"age":30},{"age":40}]' | agectl average -

  # Propagate custom baggage
  agectl average --baggage user.id=42 --baggage tenant=acme people.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAverage(cmd, args, f)
		},
	}
	average.Flags().StringArrayVar(&f.baggage, "baggage", defaultBaggage, "baggage entry key=value (repeatable)")

	health := &cobra.Command{
		Use:   "health",
		Short: "Check agecompute server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHealth(cmd, f)
		},
	}

	root.AddCommand(average, health, newLoadCmd(f))
	return root
}

// setupTracing starts a trace-only telemetry pipeline for client spans.
func setupTracing(ctx context.Context, endpoint string) (*telemetry.Telemetry, error) {
	cfg := telemetry.NewDefaultConfig()
	cfg.ServiceName = "agectl"
	cfg.ServiceVersion = version
	cfg.Metrics.Enabled = false
	cfg.Logs.Enabled = false

	var opts []telemetry.Option
	if endpoint == "" {
		opts = append(opts, telemetry.WithTraceExporter(tracetest.NewNoopExporter()))
	} else {
		cfg.Endpoint = endpoint
	}

	return telemetry.New(ctx, cfg, opts...)
}

// runAverage handles the average command
func runAverage(cmd *cobra.Command, args []string, f *flags) error {
	records, err := readRecords(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	bag, err := propagation.ParsePairs(f.baggage)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	tel, err := setupTracing(ctx, f.otlpEndpoint)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	c := newClient(f.serverURL, tel.TracerProvider(), f.timeout)
	avg, traceID, err := c.Average(ctx, records, bag)
	if traceID != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "[agectl] trace_id=%s\n", traceID)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Average age: %s\n", avg)
	return nil
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, f *flags) error {
	c := newClient(f.serverURL, nil, 5*time.Second)

	health, err := c.Health(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Server Status: %s\n", health.Status)
	fmt.Fprintf(out, "Service: %s\n", health.Service)
	fmt.Fprintf(out, "Server URL: %s\n", f.serverURL)
	for _, reason := range health.Telemetry.Reasons {
		fmt.Fprintf(out, "Telemetry: %s\n", reason)
	}
	return nil
}
