// Package config provides unified configuration loading for substrate.
// It supports loading from YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/substrate/internal/engine"
)

var validate = validator.New()

// Config contains all substrate configuration settings.
type Config struct {
	// Engine holds the tick engine parameters.
	Engine engine.Params `json:"engine" yaml:"engine"`

	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// GraphFile is the seed graph loaded at startup. Supports ${VAR}.
	GraphFile string `json:"graph_file,omitempty" yaml:"graph_file,omitempty"`
}

// LoggingConfig configures substrate's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "trace" additionally logs every tick summary.
	Level string `json:"level" yaml:"level" validate:"omitempty,oneof=info debug trace"`

	// EventsDir, when set, receives events.jsonl. Supports ${VAR}.
	EventsDir string `json:"events_dir,omitempty" yaml:"events_dir,omitempty"`
}

// MetricsConfig configures the metrics HTTP listener.
type MetricsConfig struct {
	// Addr is the listen address, e.g. ":9090". Empty disables the server.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty" validate:"omitempty,hostname_port"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Engine: engine.DefaultParams(),
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns ~/.substrate/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".substrate", "config.yaml"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.substrate/config.yaml -> environment variables
func Load() (*Config, error) {
	var configPath string
	if p, err := DefaultPath(); err == nil {
		if _, statErr := os.Stat(p); statErr == nil {
			configPath = p
		}
	}
	return LoadPath(configPath)
}

// LoadPath loads configuration from path, or from defaults alone when path
// is empty, and then applies environment variable overrides.
func LoadPath(path string) (*Config, error) {
	config := Default()
	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		config = fileConfig
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file. Keys missing
// from the file keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.GraphFile = expandEnvVars(config.GraphFile)
	config.Logging.EventsDir = expandEnvVars(config.Logging.EventsDir)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c.Logging); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := validate.Struct(c.Metrics); err != nil {
		return fmt.Errorf("metrics: invalid addr %q", c.Metrics.Addr)
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if c.Engine.Tick < time.Millisecond {
		return fmt.Errorf("engine.tick must be at least 1ms, got %v", c.Engine.Tick)
	}
	return nil
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) error {
	var errs []error

	if v := os.Getenv("SUBSTRATE_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("SUBSTRATE_EVENTS_DIR"); v != "" {
		config.Logging.EventsDir = v
	}
	if v := os.Getenv("SUBSTRATE_METRICS_ADDR"); v != "" {
		config.Metrics.Addr = v
	}
	if v := os.Getenv("SUBSTRATE_GRAPH"); v != "" {
		config.GraphFile = v
	}
	if v := os.Getenv("SUBSTRATE_TASK"); v != "" {
		config.Engine.Task = v
	}

	if v := os.Getenv("SUBSTRATE_TICK"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Engine.Tick = d
		} else {
			errs = append(errs, fmt.Errorf("SUBSTRATE_TICK: %w", err))
		}
	}
	if v := os.Getenv("SUBSTRATE_ALPHA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Engine.Alpha = f
		} else {
			errs = append(errs, fmt.Errorf("SUBSTRATE_ALPHA: %w", err))
		}
	}
	if v := os.Getenv("SUBSTRATE_DECAY_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Engine.Decay.Activation.BaseRate = f
		} else {
			errs = append(errs, fmt.Errorf("SUBSTRATE_DECAY_RATE: %w", err))
		}
	}

	if v := os.Getenv("SUBSTRATE_SAFE_MODE"); v != "" {
		config.Engine.SafeMode.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SUBSTRATE_CRITICALITY"); v != "" {
		config.Engine.Criticality.Enabled = v == "true" || v == "1"
	}

	return errors.Join(errs...)
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
