// Agecompute serves the age averaging API with OpenTelemetry instrumentation.
//
// Traces, metrics and logs are exported over OTLP to the configured collector.
// Incoming W3C trace context and baggage are honored on every request.
//
// Configuration is loaded from an optional YAML file and AGECOMPUTE_*
// environment variables. See internal/config for the mapping.
//
// Usage:
//
//	# Start server with defaults (port 5000, collector at localhost:4317)
//	agecompute
//
//	# Point at a remote collector
//	AGECOMPUTE_TELEMETRY_ENDPOINT=http://otel-collector:4317 agecompute serve
//
//	# Show version information
//	agecompute version
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fyrsmithlabs/agecompute/internal/config"
	httpserver "github.com/fyrsmithlabs/agecompute/internal/http"
	"github.com/fyrsmithlabs/agecompute/internal/logging"
	"github.com/fyrsmithlabs/agecompute/internal/telemetry"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// options holds flag values shared by the server commands.
type options struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "agecompute",
		Short: "Average age computation service",
		Long: `agecompute serves POST /compute_average_age and exports traces,
metrics and logs for every request to an OpenTelemetry collector.

Running without a subcommand is the same as "agecompute serve".`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (trace, debug, info, warn, error)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd)
		},
	})

	return root
}

// printVersion prints version information
func printVersion(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "agecompute by Fyrsmith Labs\n")
	fmt.Fprintf(out, "Version:    %s\n", version)
	fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
	fmt.Fprintf(out, "Build Date: %s\n", buildDate)
}

// appConfig is the full service configuration.
type appConfig struct {
	Server    httpserver.Config `koanf:"server"`
	Telemetry telemetry.Config  `koanf:"telemetry"`
	Logging   logging.Config    `koanf:"logging"`
}

// loadConfig layers the config file and environment over defaults, then
// applies the --log-level override.
func loadConfig(path, logLevel string) (*appConfig, error) {
	cfg := &appConfig{
		Server:    *httpserver.NewDefaultConfig(),
		Telemetry: *telemetry.NewDefaultConfig(),
		Logging:   *logging.NewDefaultConfig(),
	}

	if err := config.Load(path, cfg); err != nil {
		return nil, err
	}

	if logLevel != "" {
		level, err := logging.LevelFromString(logLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}
		cfg.Logging.Level = level
	}

	if err := cfg.Server.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	if err := cfg.Telemetry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}
	if err := cfg.Logging.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}

	return cfg, nil
}

func runServe(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(opts.configPath, opts.logLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// run starts the server and blocks until ctx is cancelled.
//
// Startup order:
//  1. Telemetry providers (registered as OTel globals)
//  2. Logger bridged to the OTel log provider
//  3. OTel error handler routed to a stdout-only logger
//  4. HTTP server
//
// Telemetry is flushed and shut down once the server has stopped.
// Returns http.ErrServerClosed on graceful shutdown.
func run(ctx context.Context, cfg *appConfig) error {
	tel, err := telemetry.New(ctx, &cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	var provider log.LoggerProvider
	if cfg.Logging.Output.OTEL {
		provider = tel.LoggerProvider()
	}
	logger, err := logging.NewLogger(&cfg.Logging, provider)
	if err != nil {
		_ = tel.Shutdown(context.Background())
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Telemetry.Shutdown.Timeout.Duration())
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error(shutdownCtx, "telemetry shutdown failed", zap.Error(err))
		}
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	otel.SetErrorHandler(otel.ErrorHandlerFunc(newOTelErrorHandler(cfg.Logging)))

	for _, w := range cfg.Telemetry.Warnings() {
		logger.Warn(ctx, w)
	}
	if health := tel.Health(); health.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.Strings("reasons", health.Reasons))
	}

	logger.Info(ctx, "starting agecompute",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr()),
		zap.String("service", cfg.Telemetry.ServiceName),
		zap.String("otlp_endpoint", cfg.Telemetry.Endpoint),
		zap.Bool("telemetry_enabled", cfg.Telemetry.Enabled))

	srv, err := httpserver.NewServer(tel, logger, &cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start(ctx)
}

// newOTelErrorHandler logs exporter and SDK errors to stdout only. Sending
// them through the OTel log pipeline would feed export failures back into
// the exporter that produced them.
func newOTelErrorHandler(cfg logging.Config) func(error) {
	cfg.Output.Stdout = true
	cfg.Output.OTEL = false
	logger, err := logging.NewLogger(&cfg, nil)
	if err != nil {
		logger = logging.NewNop()
	}
	z := logger.Named("otel").Underlying()

	return func(err error) {
		z.Warn("opentelemetry error", zap.Error(err))
	}
}
