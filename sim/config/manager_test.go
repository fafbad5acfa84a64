package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/wricardo/sandfall/sim/engine"
)

func createTestConfigDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "config-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	return dir
}

func createValidConfig() *engine.ScenarioConfig {
	return &engine.ScenarioConfig{
		Name:        "Test Scenario",
		Description: "Test scenario",
		Paths: []string{
			"498,4 -> 498,6 -> 496,6",
			"503,4 -> 502,4 -> 502,9 -> 494,9",
		},
	}
}

func writeConfigFile(t *testing.T, dir, name string, config *engine.ScenarioConfig) {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal config: %v", err)
	}

	filename := name
	if filepath.Ext(filename) == "" {
		filename = name + ".json"
	}
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
}

func writeRawFile(t *testing.T, dir, filename, content string) {
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", filename, err)
	}
}

func TestNewManager(t *testing.T) {
	t.Run("valid directory", func(t *testing.T) {
		dir := createTestConfigDir(t)
		defer os.RemoveAll(dir)

		defaultConfig := createValidConfig()
		defaultConfig.Name = "Example"
		writeConfigFile(t, dir, "example", defaultConfig)

		manager, err := NewManager(dir)
		if err != nil {
			t.Fatalf("Failed to create manager: %v", err)
		}
		if manager.GetDefault().Name != "Example" {
			t.Errorf("Expected example scenario as default, got %q", manager.GetDefault().Name)
		}
		if manager.Dir() != dir {
			t.Errorf("Expected dir %s, got %s", dir, manager.Dir())
		}
	})

	t.Run("non-existent directory", func(t *testing.T) {
		if _, err := NewManager("/non/existent/path"); err == nil {
			t.Error("Expected error for non-existent directory")
		}
	})

	t.Run("empty directory uses built-in example", func(t *testing.T) {
		dir := createTestConfigDir(t)
		defer os.RemoveAll(dir)

		manager, err := NewManager(dir)
		if err != nil {
			t.Fatalf("NewManager should succeed without scenario files, got error: %v", err)
		}
		defaultConfig := manager.GetDefault()
		if defaultConfig == nil {
			t.Fatal("Expected default config to be available")
		}
		if defaultConfig.Name != engine.DefaultScenarioConfig().Name {
			t.Errorf("Expected built-in example, got %q", defaultConfig.Name)
		}
	})

	t.Run("first valid scenario when example missing", func(t *testing.T) {
		dir := createTestConfigDir(t)
		defer os.RemoveAll(dir)

		config := createValidConfig()
		config.Name = "Alpha"
		writeConfigFile(t, dir, "alpha", config)
		config.Name = "Beta"
		writeConfigFile(t, dir, "beta", config)

		manager, err := NewManager(dir)
		if err != nil {
			t.Fatalf("Failed to create manager: %v", err)
		}
		if manager.GetDefault().Name != "Alpha" {
			t.Errorf("Expected Alpha as default, got %q", manager.GetDefault().Name)
		}
	})
}

func TestManager_LoadConfig(t *testing.T) {
	dir := createTestConfigDir(t)
	defer os.RemoveAll(dir)

	writeConfigFile(t, dir, "example", createValidConfig())

	wide := createValidConfig()
	wide.Name = "Wide"
	wide.Policy = engine.FloorSaturation
	writeConfigFile(t, dir, "wide", wide)

	writeRawFile(t, dir, "funnel.yaml", `name: Funnel
description: Two ramps
policy: floor_saturation
source:
  x: 500
  y: 0
paths:
  - "490,3 -> 497,10"
  - "510,3 -> 503,10"
`)

	manager, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	t.Run("load existing config", func(t *testing.T) {
		config, err := manager.LoadConfig("wide")
		if err != nil {
			t.Fatalf("Failed to load config: %v", err)
		}
		if config.Name != "Wide" || config.Policy != engine.FloorSaturation {
			t.Errorf("Unexpected config: %+v", config)
		}
	})

	t.Run("load with .json extension", func(t *testing.T) {
		config, err := manager.LoadConfig("wide.json")
		if err != nil {
			t.Fatalf("Failed to load config with extension: %v", err)
		}
		if config.Name != "Wide" {
			t.Errorf("Expected config name 'Wide', got '%s'", config.Name)
		}
	})

	t.Run("load YAML config", func(t *testing.T) {
		config, err := manager.LoadConfig("funnel")
		if err != nil {
			t.Fatalf("Failed to load YAML config: %v", err)
		}
		if config.Name != "Funnel" || len(config.Paths) != 2 || config.Source == nil {
			t.Errorf("Unexpected YAML config: %+v", config)
		}
	})

	t.Run("load from cache", func(t *testing.T) {
		config1, _ := manager.LoadConfig("wide")
		config2, err := manager.LoadConfig("wide")
		if err != nil {
			t.Fatalf("Failed to load config from cache: %v", err)
		}
		if config1 != config2 {
			t.Error("Expected config to be loaded from cache")
		}
	})

	t.Run("load non-existent config", func(t *testing.T) {
		if _, err := manager.LoadConfig("non-existent"); err != ErrConfigNotFound {
			t.Errorf("Expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("path traversal is not found", func(t *testing.T) {
		if _, err := manager.LoadConfig("../example"); err != ErrConfigNotFound {
			t.Errorf("Expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("schema violation", func(t *testing.T) {
		writeRawFile(t, dir, "extra.json", `{"name": "Extra", "paths": ["1,1 -> 1,5"], "gravity": 2}`)
		_, err := manager.LoadConfig("extra")
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("degenerate path", func(t *testing.T) {
		writeRawFile(t, dir, "degenerate.json", `{"name": "Degenerate", "paths": ["500,4"]}`)
		_, err := manager.LoadConfig("degenerate")
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("source below floor passes schema but not validation", func(t *testing.T) {
		writeRawFile(t, dir, "deep.json", `{"name": "Deep", "source": {"x": 500, "y": 50}, "paths": ["490,5 -> 510,5"]}`)
		_, err := manager.LoadConfig("deep")
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("Expected ErrInvalidConfig, got %v", err)
		}
		if !strings.Contains(err.Error(), "floor level") {
			t.Errorf("Expected floor level message, got %v", err)
		}
	})

	t.Run("load malformed JSON", func(t *testing.T) {
		writeRawFile(t, dir, "malformed.json", `{"name": "Malformed", invalid json}`)
		if _, err := manager.LoadConfig("malformed"); err == nil {
			t.Error("Expected error for malformed JSON")
		}
	})
}

func TestManager_ListConfigs(t *testing.T) {
	dir := createTestConfigDir(t)
	defer os.RemoveAll(dir)

	names := []string{"example", "ledges", "single"}
	for _, n := range names {
		config := createValidConfig()
		config.Name = strings.ToUpper(n)
		writeConfigFile(t, dir, n, config)
	}
	writeRawFile(t, dir, "funnel.yml", "name: Funnel\npaths:\n  - 490,3 -> 497,10\n")
	writeRawFile(t, dir, "readme.txt", "readme")
	writeRawFile(t, dir, "broken.json", `{"name": ""}`)

	manager, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	infos, err := manager.ListConfigs()
	if err != nil {
		t.Fatalf("Failed to list configs: %v", err)
	}
	want := []string{"example", "funnel", "ledges", "single"}
	if len(infos) != len(want) {
		t.Fatalf("Expected %d scenarios, got %d", len(want), len(infos))
	}
	for i, info := range infos {
		if info.ScenarioID != want[i] {
			t.Errorf("Expected scenario %d to be %s, got %s", i, want[i], info.ScenarioID)
		}
	}

	example := infos[0]
	if example.RockCount != 20 || example.FloorLevel != 9 || example.PathCount != 2 {
		t.Errorf("Unexpected example info: %+v", example)
	}
	if example.Source != engine.DefaultSource || example.Policy != engine.VoidOverflow {
		t.Errorf("Expected default source and policy, got %v %s", example.Source, example.Policy)
	}
	if infos[1].Filename != "funnel.yml" {
		t.Errorf("Expected YAML filename, got %s", infos[1].Filename)
	}
}

func TestManager_SaveConfig(t *testing.T) {
	dir := createTestConfigDir(t)
	defer os.RemoveAll(dir)

	manager, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	config := createValidConfig()
	config.Name = "Saved"
	if err := manager.SaveConfig("saved", config); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "saved.json")); err != nil {
		t.Errorf("Expected saved.json on disk: %v", err)
	}

	if err := manager.SaveConfig("saved_yaml.yaml", config); err != nil {
		t.Fatalf("SaveConfig(yaml) error = %v", err)
	}
	yamlData, err := os.ReadFile(filepath.Join(dir, "saved_yaml.yaml"))
	if err != nil {
		t.Fatalf("Expected YAML file: %v", err)
	}
	if !strings.Contains(string(yamlData), "name: Saved") {
		t.Errorf("Expected YAML content, got %s", yamlData)
	}

	// Fresh manager reads both back through the schema
	fresh, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	for _, id := range []string{"saved", "saved_yaml"} {
		loaded, err := fresh.LoadConfig(id)
		if err != nil {
			t.Fatalf("LoadConfig(%s) error = %v", id, err)
		}
		if loaded.Name != "Saved" {
			t.Errorf("Expected name Saved, got %q", loaded.Name)
		}
	}

	invalid := createValidConfig()
	invalid.Paths = nil
	if err := manager.SaveConfig("invalid", invalid); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
	if err := manager.SaveConfig("../escape", config); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for path name, got %v", err)
	}
}

func TestManager_SetDefaultAndRefresh(t *testing.T) {
	dir := createTestConfigDir(t)
	defer os.RemoveAll(dir)

	config := createValidConfig()
	config.Name = "Example"
	writeConfigFile(t, dir, "example", config)
	config.Name = "Other"
	writeConfigFile(t, dir, "other", config)

	manager, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	if err := manager.SetDefault("other"); err != nil {
		t.Fatalf("SetDefault() error = %v", err)
	}
	if manager.GetDefault().Name != "Other" {
		t.Errorf("Expected Other as default, got %q", manager.GetDefault().Name)
	}
	if err := manager.SetDefault("missing"); err != ErrConfigNotFound {
		t.Errorf("Expected ErrConfigNotFound, got %v", err)
	}

	config.Name = "Example Changed"
	writeConfigFile(t, dir, "example", config)
	if err := manager.RefreshCache(); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	if manager.GetDefault().Name != "Example Changed" {
		t.Errorf("Expected refreshed example default, got %q", manager.GetDefault().Name)
	}
}

func TestManager_ReloadConfig(t *testing.T) {
	dir := createTestConfigDir(t)
	defer os.RemoveAll(dir)

	config := createValidConfig()
	config.Name = "Changeable"
	writeConfigFile(t, dir, "changeable", config)

	manager, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	loaded, _ := manager.LoadConfig("changeable")
	if loaded.Policy != "" {
		t.Errorf("Expected unset policy, got %s", loaded.Policy)
	}

	config.Policy = engine.FloorSaturation
	writeConfigFile(t, dir, "changeable", config)
	if err := manager.ReloadConfig("changeable"); err != nil {
		t.Fatalf("Failed to reload config: %v", err)
	}

	reloaded, _ := manager.LoadConfig("changeable")
	if reloaded.Policy != engine.FloorSaturation {
		t.Errorf("Expected reloaded policy %s, got %s", engine.FloorSaturation, reloaded.Policy)
	}
}

func TestManager_ConcurrentAccess(t *testing.T) {
	dir := createTestConfigDir(t)
	defer os.RemoveAll(dir)

	for i := 1; i <= 5; i++ {
		config := createValidConfig()
		config.Name = fmt.Sprintf("Config%d", i)
		writeConfigFile(t, dir, fmt.Sprintf("config%d", i), config)
	}

	manager, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if _, err := manager.LoadConfig(fmt.Sprintf("config%d", (id%5)+1)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Unexpected error during concurrent access: %v", err)
	}
	if manager.Count() != 5 {
		t.Errorf("Expected 5 configs in cache, got %d", manager.Count())
	}
}

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		ext     string
		wantErr bool
	}{
		{"valid json", `{"name": "A", "paths": ["1,1 -> 1,5"]}`, ".json", false},
		{"valid yaml", "name: A\npolicy: void_overflow\npaths:\n  - 1,1 -> 1,5 -> 3,5\n", ".yaml", false},
		{"negative x allowed", `{"name": "A", "paths": ["-3,1 -> 1,5"]}`, ".json", false},
		{"missing paths", `{"name": "A"}`, ".json", true},
		{"single vertex", `{"name": "A", "paths": ["1,1"]}`, ".json", true},
		{"unknown policy", `{"name": "A", "policy": "up", "paths": ["1,1 -> 1,5"]}`, ".json", true},
		{"negative source y", `{"name": "A", "source": {"x": 1, "y": -1}, "paths": ["1,1 -> 1,5"]}`, ".json", true},
		{"fractional source", "name: A\nsource: {x: 1.5, y: 0}\npaths: [\"1,1 -> 1,5\"]\n", ".yml", true},
		{"bad yaml", "name: [unclosed", ".yaml", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocument([]byte(tt.doc), tt.ext)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDocument() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// Test-only helpers

func (m *Manager) ReloadConfig(name string) error {
	m.mu.Lock()
	delete(m.configs, name)
	m.mu.Unlock()

	_, err := m.LoadConfig(name)
	return err
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.configs)
}
