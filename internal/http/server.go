// Package http provides the HTTP API for agecompute.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/agecompute/internal/logging"
	"github.com/fyrsmithlabs/agecompute/internal/propagation"
	"github.com/fyrsmithlabs/agecompute/internal/telemetry"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Server provides the compute and health endpoints.
type Server struct {
	echo      *echo.Echo
	telemetry *telemetry.Telemetry
	logger    *logging.Logger
	config    *Config

	metrics      *HTTPMetrics
	tracer       trace.Tracer
	requestCount metric.Int64Counter
	bodyLimit    int64
}

// NewServer creates a new HTTP server.
func NewServer(tel *telemetry.Telemetry, logger *logging.Logger, cfg *Config) (*Server, error) {
	if tel == nil {
		return nil, fmt.Errorf("telemetry cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}

	bodyLimit, err := cfg.BodyLimitBytes()
	if err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}

	meter := tel.Meter(httpInstrumentationName)
	requestCount, err := newRequestCounter(meter)
	if err != nil {
		return nil, fmt.Errorf("creating request counter: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout.Duration()
	e.Server.WriteTimeout = cfg.WriteTimeout.Duration()
	e.Server.IdleTimeout = cfg.IdleTimeout.Duration()

	s := &Server{
		echo:         e,
		telemetry:    tel,
		logger:       logger,
		config:       cfg,
		metrics:      NewHTTPMetrics(meter, logger),
		tracer:       tel.Tracer(httpInstrumentationName),
		requestCount: requestCount,
		bodyLimit:    bodyLimit,
	}
	e.HTTPErrorHandler = s.handleError

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator:        uuid.NewString,
		RequestIDHandler: s.bindRequestID,
	}))
	e.Use(propagation.Middleware())
	e.Use(s.metrics.MetricsMiddleware())
	e.Use(s.requestLogger())

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.POST(ComputePath, s.handleComputeAverageAge)

	if h := s.telemetry.MetricsHandler(); h != nil {
		s.echo.GET("/metrics", echo.WrapHandler(h))
	}
}

// bindRequestID makes the request ID and the server logger available to
// handlers through the request context.
func (s *Server) bindRequestID(c echo.Context, id string) {
	req := c.Request()
	ctx := logging.WithRequestID(req.Context(), id)
	c.SetRequest(req.WithContext(logging.WithLogger(ctx, s.logger)))
}

// requestLogger logs every request once it has been handled. Handler errors
// are committed here so the logged status is the one sent.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			s.logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)

			return nil
		}
	}
}

// handleError renders errors as {"error": message}.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := http.StatusText(code)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	}

	if code >= http.StatusInternalServerError {
		s.logger.Error(c.Request().Context(), "request failed", zap.Error(err))
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(code)
	} else {
		werr = c.JSON(code, ErrorResponse{Error: msg})
	}
	if werr != nil {
		s.logger.Warn(c.Request().Context(), "writing error response", zap.Error(werr))
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
//
// Returns http.ErrServerClosed after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := s.config.Addr()

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info(ctx, "starting http server", zap.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout.Duration())
		defer cancel()

		if err := s.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}

		return http.ErrServerClosed
	}
}

// ListenerAddr returns the bound address, or nil before the server listens.
func (s *Server) ListenerAddr() net.Addr {
	return s.echo.ListenerAddr()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
