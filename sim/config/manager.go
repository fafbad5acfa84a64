package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/wricardo/sandfall/sim/engine"
	"github.com/wricardo/sandfall/sim/service"
)

var (
	ErrConfigNotFound = service.ErrConfigNotFound
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// DefaultScenarioID is loaded as the default scenario when present
const DefaultScenarioID = "example"

// Manager handles scenario loading and caching
type Manager struct {
	configDir     string
	defaultConfig *engine.ScenarioConfig
	configs       map[string]*engine.ScenarioConfig
	mu            sync.RWMutex
}

// NewManager creates a new scenario manager
func NewManager(configDir string) (*Manager, error) {
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("config directory does not exist: %s", configDir)
	}

	m := &Manager{
		configDir: configDir,
		configs:   make(map[string]*engine.ScenarioConfig),
	}
	if err := m.loadDefaultConfig(); err != nil {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}
	return m, nil
}

// Dir returns the scenarios directory
func (m *Manager) Dir() string {
	return m.configDir
}

// LoadConfig loads a scenario by name. The name may carry a .json, .yaml
// or .yml extension; without one each is tried in that order.
func (m *Manager) LoadConfig(name string) (*engine.ScenarioConfig, error) {
	id, ext := splitScenarioName(name)

	m.mu.RLock()
	if config, exists := m.configs[id]; exists {
		m.mu.RUnlock()
		return config, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if config, exists := m.configs[id]; exists {
		return config, nil
	}

	configPath, err := m.resolvePath(id, ext)
	if err != nil {
		return nil, err
	}
	config, err := readScenario(configPath)
	if err != nil {
		return nil, err
	}

	m.configs[id] = config
	return config, nil
}

// resolvePath finds the file backing a scenario ID
func (m *Manager) resolvePath(id, ext string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return "", ErrConfigNotFound
	}
	candidates := scenarioExtensions
	if ext != "" {
		candidates = []string{ext}
	}
	for _, e := range candidates {
		p := filepath.Join(m.configDir, id+e)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", ErrConfigNotFound
}

// readScenario reads, schema-checks and validates one scenario file
func readScenario(configPath string) (*engine.ScenarioConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	ext := filepath.Ext(configPath)
	if err := ValidateDocument(data, ext); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	config, err := engine.DecodeScenario(data, ext)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := engine.ValidateScenarioConfig(config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return config, nil
}

// ListConfigs returns information about all available scenarios
func (m *Manager) ListConfigs() ([]*service.ScenarioInfo, error) {
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	var infos []*service.ScenarioInfo
	seen := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, ext := splitScenarioName(entry.Name())
		if ext == "" || seen[id] {
			continue
		}

		config, err := m.LoadConfig(id)
		if err != nil {
			// Skip invalid scenarios
			continue
		}
		seen[id] = true
		infos = append(infos, describe(entry.Name(), id, config))
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ScenarioID < infos[j].ScenarioID
	})
	return infos, nil
}

func describe(filename, id string, config *engine.ScenarioConfig) *service.ScenarioInfo {
	info := &service.ScenarioInfo{
		Filename:    filename,
		ScenarioID:  id,
		Name:        config.Name,
		Description: config.Description,
		Policy:      config.EffectivePolicy(),
		Source:      config.SourcePosition(),
		PathCount:   len(config.Paths),
	}
	if rocks, err := config.Rocks(); err == nil {
		info.RockCount = len(rocks)
		for _, p := range rocks {
			if p.Y > info.FloorLevel {
				info.FloorLevel = p.Y
			}
		}
	}
	return info
}

// GetDefault returns the default scenario
func (m *Manager) GetDefault() *engine.ScenarioConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultConfig
}

// SetDefault sets the default scenario by name
func (m *Manager) SetDefault(name string) error {
	config, err := m.LoadConfig(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultConfig = config
	return nil
}

// RefreshCache drops every cached scenario and reloads the default from disk
func (m *Manager) RefreshCache() error {
	m.mu.Lock()
	m.configs = make(map[string]*engine.ScenarioConfig)
	m.mu.Unlock()

	return m.loadDefaultConfig()
}

// loadDefaultConfig loads example, else the first valid scenario, else the built-in example
func (m *Manager) loadDefaultConfig() error {
	config, err := m.LoadConfig(DefaultScenarioID)
	if err != nil {
		configs, listErr := m.ListConfigs()
		if listErr != nil || len(configs) == 0 {
			m.setDefault(engine.DefaultScenarioConfig())
			return nil
		}
		config, err = m.LoadConfig(configs[0].ScenarioID)
		if err != nil {
			m.setDefault(engine.DefaultScenarioConfig())
			return nil
		}
	}
	m.setDefault(config)
	return nil
}

func (m *Manager) setDefault(config *engine.ScenarioConfig) {
	m.mu.Lock()
	m.defaultConfig = config
	m.mu.Unlock()
}

// SaveConfig validates a scenario and writes it to disk. Names ending in
// .yaml or .yml are written as YAML, everything else as indented JSON.
func (m *Manager) SaveConfig(name string, config *engine.ScenarioConfig) error {
	if err := engine.ValidateScenarioConfig(config); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	id, ext := splitScenarioName(name)
	if id == "" || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: invalid scenario name %q", ErrInvalidConfig, name)
	}
	if ext == "" {
		ext = ".json"
	}

	var data []byte
	var err error
	if isYAML(ext) {
		data, err = yaml.Marshal(config)
	} else {
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	configPath := filepath.Join(m.configDir, id+ext)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	m.mu.Lock()
	m.configs[id] = config
	m.mu.Unlock()
	return nil
}
