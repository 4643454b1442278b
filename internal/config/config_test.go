package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/substrate/internal/engine"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestDefault(t *testing.T) {
	config := Default()

	if config.Logging.Level != "info" {
		t.Errorf("expected Logging.Level 'info', got '%s'", config.Logging.Level)
	}
	if config.Metrics.Addr != "" {
		t.Errorf("expected metrics disabled by default, got %q", config.Metrics.Addr)
	}
	if diff := cmp.Diff(engine.DefaultParams(), config.Engine); diff != "" {
		t.Errorf("engine params differ from defaults (-want +got):\n%s", diff)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("expected default config to be valid, got: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	configPath := writeConfig(t, `
engine:
  tick: 500ms
  alpha: 0.15
  task: explore
  decay:
    activation:
      base_rate: 0.05
      multipliers:
        task: 4
  criticality:
    dual_lever: true
  safe_mode:
    min_dwell: 10s
logging:
  level: debug
  events_dir: /tmp/substrate
metrics:
  addr: ":9090"
graph_file: seed.yaml
`)

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	e := config.Engine
	if e.Tick != 500*time.Millisecond {
		t.Errorf("expected tick 500ms, got %v", e.Tick)
	}
	if e.Alpha != 0.15 || e.Task != "explore" {
		t.Errorf("expected alpha 0.15 task explore, got %v %q", e.Alpha, e.Task)
	}
	if e.Decay.Activation.BaseRate != 0.05 {
		t.Errorf("expected base_rate 0.05, got %v", e.Decay.Activation.BaseRate)
	}
	if !e.Criticality.DualLever {
		t.Error("expected dual_lever to be true")
	}
	if e.SafeMode.MinDwell != 10*time.Second {
		t.Errorf("expected min_dwell 10s, got %v", e.SafeMode.MinDwell)
	}
	// Untouched keys keep their defaults.
	if e.Criticality.Kp != engine.DefaultParams().Criticality.Kp {
		t.Errorf("expected default Kp, got %v", e.Criticality.Kp)
	}
	if config.Logging.Level != "debug" || config.Logging.EventsDir != "/tmp/substrate" {
		t.Errorf("unexpected logging config: %+v", config.Logging)
	}
	if config.Metrics.Addr != ":9090" || config.GraphFile != "seed.yaml" {
		t.Errorf("unexpected metrics/graph: %q %q", config.Metrics.Addr, config.GraphFile)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("expected loaded config to be valid, got: %v", err)
	}
}

func TestLoadFromFile_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_SUBSTRATE_HOME", "/var/lib/substrate")
	configPath := writeConfig(t, `
logging:
  events_dir: ${TEST_SUBSTRATE_HOME}/events
graph_file: ${TEST_SUBSTRATE_HOME}/seed.yaml
`)

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if config.Logging.EventsDir != "/var/lib/substrate/events" {
		t.Errorf("expected expanded events dir, got '%s'", config.Logging.EventsDir)
	}
	if config.GraphFile != "/var/lib/substrate/seed.yaml" {
		t.Errorf("expected expanded graph file, got '%s'", config.GraphFile)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SUBSTRATE_LOG_LEVEL", "trace")
	t.Setenv("SUBSTRATE_METRICS_ADDR", "localhost:9100")
	t.Setenv("SUBSTRATE_TICK", "250ms")
	t.Setenv("SUBSTRATE_ALPHA", "0.2")
	t.Setenv("SUBSTRATE_DECAY_RATE", "0.04")
	t.Setenv("SUBSTRATE_SAFE_MODE", "false")
	t.Setenv("SUBSTRATE_TASK", "rest")

	config := Default()
	if err := applyEnvOverrides(config); err != nil {
		t.Fatalf("applyEnvOverrides: %v", err)
	}

	if config.Logging.Level != "trace" {
		t.Errorf("expected Logging.Level 'trace', got '%s'", config.Logging.Level)
	}
	if config.Metrics.Addr != "localhost:9100" {
		t.Errorf("expected metrics addr override, got %q", config.Metrics.Addr)
	}
	if config.Engine.Tick != 250*time.Millisecond {
		t.Errorf("expected tick 250ms, got %v", config.Engine.Tick)
	}
	if config.Engine.Alpha != 0.2 || config.Engine.Decay.Activation.BaseRate != 0.04 {
		t.Errorf("expected alpha 0.2 and base rate 0.04, got %v %v", config.Engine.Alpha, config.Engine.Decay.Activation.BaseRate)
	}
	if config.Engine.SafeMode.Enabled {
		t.Error("expected safe mode disabled")
	}
	if config.Engine.Task != "rest" {
		t.Errorf("expected task rest, got %q", config.Engine.Task)
	}
}

func TestEnvOverrides_Malformed(t *testing.T) {
	t.Setenv("SUBSTRATE_TICK", "soon")
	t.Setenv("SUBSTRATE_ALPHA", "high")

	config := Default()
	err := applyEnvOverrides(config)
	if err == nil {
		t.Fatal("expected an error for malformed overrides")
	}
	for _, name := range []string{"SUBSTRATE_TICK", "SUBSTRATE_ALPHA"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q should name %s", err, name)
		}
	}
	if config.Engine.Tick != time.Second {
		t.Errorf("malformed tick should leave the default, got %v", config.Engine.Tick)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad metrics addr", func(c *Config) { c.Metrics.Addr = "not an address" }},
		{"tick too short", func(c *Config) { c.Engine.Tick = time.Microsecond }},
		{"alpha out of bounds", func(c *Config) { c.Engine.Alpha = 0.9 }},
		{"negative floor", func(c *Config) { c.Engine.Decay.Activation.EnergyFloor = -1 }},
		{"rho band inverted", func(c *Config) { c.Engine.Tripwires.RhoMax = 0.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)
			if err := config.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidate_ValidLogLevels(t *testing.T) {
	validLevels := []string{"", "info", "debug", "trace"}

	for _, level := range validLevels {
		t.Run(level, func(t *testing.T) {
			config := Default()
			config.Logging.Level = level
			if err := config.Validate(); err != nil {
				t.Errorf("expected log level '%s' to be valid, got error: %v", level, err)
			}
		})
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	config := Default()
	config.Metrics.Addr = ":9090"
	config.Engine.Criticality.TaskTargets["custom"] = 0.9

	data, err := config.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got := &Config{}
	if err := yaml.Unmarshal(data, got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(config, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFromFile_NotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, `
engine:
  tick: [invalid yaml
`)

	_, err := LoadFromFile(configPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadPath(t *testing.T) {
	configPath := writeConfig(t, "engine:\n  alpha: 0.12\n")
	t.Setenv("SUBSTRATE_DECAY_RATE", "0.05")

	config, err := LoadPath(configPath)
	if err != nil {
		t.Fatalf("LoadPath: %v", err)
	}
	if config.Engine.Alpha != 0.12 {
		t.Errorf("expected alpha from file, got %v", config.Engine.Alpha)
	}
	if config.Engine.Decay.Activation.BaseRate != 0.05 {
		t.Errorf("expected env override to win over the file, got %v", config.Engine.Decay.Activation.BaseRate)
	}

	defaults, err := LoadPath("")
	if err != nil {
		t.Fatalf("LoadPath(\"\"): %v", err)
	}
	if defaults.Engine.Alpha != engine.DefaultParams().Alpha {
		t.Errorf("empty path should keep the default alpha, got %v", defaults.Engine.Alpha)
	}
}
