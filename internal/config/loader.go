// Package config provides configuration loading for agecompute.
//
// Components own their configuration structs (server, telemetry, logging);
// this package only knows how to populate them from a YAML file and the
// environment, plus the text types those structs share.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix is the prefix for environment overrides.
	EnvPrefix = "AGECOMPUTE_"
)

// ErrConfigTooLarge is returned when the config file exceeds the size limit.
var ErrConfigTooLarge = errors.New("config file too large")

// Load populates out from a YAML file, then overrides with environment variables.
//
// out must be a pointer to a struct already holding defaults; keys absent from
// both sources keep their default value.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (AGECOMPUTE_SERVER_PORT, AGECOMPUTE_TELEMETRY__METRICS__EXPORT_INTERVAL)
//  2. YAML config file (path, optional)
//  3. Defaults already present in out
//
// A missing file at path is not an error; an empty path skips the file.
//
// # Environment Variable Mapping
//
// The prefix is stripped and the rest lowercased. A double underscore
// separates nesting levels; without one, the first underscore splits
// section from field:
//
//	AGECOMPUTE_SERVER_PORT                          -> server.port
//	AGECOMPUTE_TELEMETRY_SERVICE_NAME               -> telemetry.service_name
//	AGECOMPUTE_TELEMETRY__METRICS__EXPORT_INTERVAL  -> telemetry.metrics.export_interval
func Load(path string, out interface{}) error {
	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return err
		}
		if content != nil {
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", EnvKey), nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := k.Unmarshal("", out); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return nil
}

// EnvKey maps an environment variable name to a config key.
// Returns "" for variables outside EnvPrefix, which koanf then skips.
func EnvKey(s string) string {
	if !strings.HasPrefix(s, EnvPrefix) {
		return ""
	}
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))

	if strings.Contains(lower, "__") {
		return strings.ReplaceAll(lower, "__", ".")
	}

	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// readConfigFile reads path through a single descriptor so the size check
// and the read see the same file. Returns nil content if the file is absent.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrConfigTooLarge, info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}
