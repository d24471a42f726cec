package http

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/agecompute/internal/config"
	"github.com/labstack/gommon/bytes"
)

// Config holds HTTP server configuration.
type Config struct {
	Host            string          `koanf:"host"`
	Port            int             `koanf:"port"`
	ReadTimeout     config.Duration `koanf:"read_timeout"`
	WriteTimeout    config.Duration `koanf:"write_timeout"`
	IdleTimeout     config.Duration `koanf:"idle_timeout"`
	ShutdownTimeout config.Duration `koanf:"shutdown_timeout"`
	BodyLimit       string          `koanf:"body_limit"` // e.g. "1M", empty disables
}

// NewDefaultConfig returns server defaults: all interfaces on port 5000.
func NewDefaultConfig() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            5000,
		ReadTimeout:     config.Duration(10 * time.Second),
		WriteTimeout:    config.Duration(10 * time.Second),
		IdleTimeout:     config.Duration(60 * time.Second),
		ShutdownTimeout: config.Duration(10 * time.Second),
		BodyLimit:       "1M",
	}
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", c.Port)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.IdleTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.ShutdownTimeout.Duration() <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	if _, err := c.BodyLimitBytes(); err != nil {
		return err
	}
	return nil
}

// BodyLimitBytes parses BodyLimit ("512K", "1M"). Zero means unlimited.
func (c *Config) BodyLimitBytes() (int64, error) {
	if c.BodyLimit == "" {
		return 0, nil
	}
	n, err := bytes.Parse(c.BodyLimit)
	if err != nil {
		return 0, fmt.Errorf("body_limit %q: %w", c.BodyLimit, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("body_limit must not be negative, got %q", c.BodyLimit)
	}
	return n, nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
