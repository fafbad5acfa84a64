package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ExamplePaths is the small reference cave used as the default scenario
var ExamplePaths = []string{
	"498,4 -> 498,6 -> 496,6",
	"503,4 -> 502,4 -> 502,9 -> 494,9",
}

// DefaultScenarioConfig returns the reference scenario
func DefaultScenarioConfig() *ScenarioConfig {
	paths := make([]string, len(ExamplePaths))
	copy(paths, ExamplePaths)
	return &ScenarioConfig{
		Name:        "Example Cave",
		Description: "Two rock formations below the default source",
		Policy:      VoidOverflow,
		Paths:       paths,
	}
}

// ValidateScenarioConfig checks that a scenario can seed a run
func ValidateScenarioConfig(config *ScenarioConfig) error {
	if config == nil {
		return fmt.Errorf("scenario validation: config cannot be nil")
	}
	if strings.TrimSpace(config.Name) == "" {
		return fmt.Errorf("scenario validation: name is required")
	}
	if len(config.Paths) == 0 {
		return fmt.Errorf("scenario validation: at least one path is required")
	}
	if config.Policy != "" && !config.Policy.Valid() {
		return fmt.Errorf("scenario validation: policy must be %q or %q, got %q", VoidOverflow, FloorSaturation, config.Policy)
	}

	rocks, err := config.Rocks()
	if err != nil {
		return fmt.Errorf("scenario validation: %w", err)
	}
	if _, err := NewRun(rocks, config.SourcePosition(), config.EffectivePolicy()); err != nil {
		return fmt.Errorf("scenario validation: %w", err)
	}
	return nil
}

// SourcePosition returns the configured source or the default
func (c *ScenarioConfig) SourcePosition() Position {
	if c.Source == nil {
		return DefaultSource
	}
	return *c.Source
}

// EffectivePolicy returns the configured policy, VoidOverflow when unset
func (c *ScenarioConfig) EffectivePolicy() Policy {
	if c.Policy == "" {
		return VoidOverflow
	}
	return c.Policy
}

// Rocks parses and rasterizes the scenario's paths
func (c *ScenarioConfig) Rocks() ([]Position, error) {
	return RocksFromLines(c.Paths)
}

// LoadScenarioConfig loads a scenario file. Files ending in .yaml or .yml
// are decoded as YAML, everything else as JSON.
func LoadScenarioConfig(filename string) (*ScenarioConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	config, err := DecodeScenario(data, filepath.Ext(filename))
	if err != nil {
		return nil, err
	}
	if err := ValidateScenarioConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// DecodeScenario decodes a scenario document in the format named by ext
func DecodeScenario(data []byte, ext string) (*ScenarioConfig, error) {
	var config ScenarioConfig
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	}
	return &config, nil
}

// InitSimState creates the idle state of a fresh run
func InitSimState(name string, rocks []Position, source Position, policy Policy) (*SimState, error) {
	run, err := NewRun(rocks, source, policy)
	if err != nil {
		return nil, err
	}
	return newSimState(name, run), nil
}

// InitSimStateFromConfig creates the idle state for a scenario, nil means the default scenario
func InitSimStateFromConfig(config *ScenarioConfig) (*SimState, error) {
	if config == nil {
		config = DefaultScenarioConfig()
	}
	rocks, err := config.Rocks()
	if err != nil {
		return nil, err
	}
	return InitSimState(config.Name, rocks, config.SourcePosition(), config.EffectivePolicy())
}

func newSimState(name string, run *Run) *SimState {
	return &SimState{
		Run:          *cloneRun(run),
		ScenarioName: name,
		Message:      "Ready to drop grains.",
	}
}

func cloneRun(run *Run) *Run {
	c := *run
	c.Occupancy = run.Occupancy.Clone()
	return &c
}
