package logging

import (
	"testing"
	"time"

	"github.com/fyrsmithlabs/agecompute/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, zapcore.InfoLevel, cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.True(t, cfg.Output.Stdout)
	assert.True(t, cfg.Output.OTEL)
	assert.True(t, cfg.Sampling.Enabled)
	assert.Equal(t, config.Duration(time.Second), cfg.Sampling.Tick)
	assert.Equal(t, 100, cfg.Sampling.Initial)
	assert.Equal(t, 10, cfg.Sampling.Thereafter)
	assert.True(t, cfg.Caller.Enabled)
	assert.Equal(t, 1, cfg.Caller.Skip)
	assert.Equal(t, zapcore.ErrorLevel, cfg.Stacktrace.Level)
	assert.Equal(t, "compute-service", cfg.Fields["service"])
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "invalid format",
			mutate:  func(c *Config) { c.Format = "xml" },
			wantErr: "format must be",
		},
		{
			name:    "no outputs",
			mutate:  func(c *Config) { c.Output.Stdout = false; c.Output.OTEL = false },
			wantErr: "at least one output",
		},
		{
			name:    "zero tick",
			mutate:  func(c *Config) { c.Sampling.Tick = 0 },
			wantErr: "sampling tick",
		},
		{
			name:    "zero tick ignored when sampling disabled",
			mutate:  func(c *Config) { c.Sampling.Enabled = false; c.Sampling.Tick = 0 },
			wantErr: "",
		},
		{
			name:    "negative thereafter",
			mutate:  func(c *Config) { c.Sampling.Thereafter = -1 },
			wantErr: "initial and thereafter",
		},
		{
			name:    "negative caller skip",
			mutate:  func(c *Config) { c.Caller.Skip = -1 },
			wantErr: "caller skip",
		},
		{
			name:    "empty field key",
			mutate:  func(c *Config) { c.Fields[""] = "x" },
			wantErr: "field key cannot be empty",
		},
		{
			name:    "empty field value",
			mutate:  func(c *Config) { c.Fields["env"] = "" },
			wantErr: "empty value",
		},
		{
			name:    "console format",
			mutate:  func(c *Config) { c.Format = "console" },
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
