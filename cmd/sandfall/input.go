package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"
	"github.com/wricardo/sandfall/sim/config"
	"github.com/wricardo/sandfall/sim/engine"
)

// loadScenario resolves the command's input into a validated scenario and
// the identifier it is reported under
func loadScenario(cmd *cli.Command, stdin io.Reader) (*engine.ScenarioConfig, string, error) {
	var (
		scenario *engine.ScenarioConfig
		id       string
		err      error
	)

	if name := cmd.String("scenario"); name != "" {
		manager, err := config.NewManager(cmd.String("config-dir"))
		if err != nil {
			return nil, "", err
		}
		if scenario, err = manager.LoadConfig(name); err != nil {
			return nil, "", fmt.Errorf("scenario %s: %w", name, err)
		}
		id = name
	} else {
		scenario, id, err = readInput(cmd.Args().First(), stdin)
		if err != nil {
			return nil, "", err
		}
	}

	if s := cmd.String("source"); s != "" {
		source, err := engine.ParsePoint(s)
		if err != nil {
			return nil, "", err
		}
		c := *scenario
		c.Source = &source
		scenario = &c
	}

	if err := engine.ValidateScenarioConfig(scenario); err != nil {
		return nil, "", err
	}
	return scenario, id, nil
}

// readInput reads a scenario document or a polyline text file. An empty
// path or "-" reads polylines from stdin.
func readInput(path string, stdin io.Reader) (*engine.ScenarioConfig, string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return scenarioFromText("stdin", string(data)), "stdin", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}

	ext := strings.ToLower(filepath.Ext(path))
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	switch ext {
	case ".json", ".yaml", ".yml":
		if err := config.ValidateDocument(data, ext); err != nil {
			return nil, "", fmt.Errorf("%s: %w", path, err)
		}
		scenario, err := engine.DecodeScenario(data, ext)
		if err != nil {
			return nil, "", err
		}
		return scenario, id, nil
	default:
		return scenarioFromText(id, string(data)), id, nil
	}
}

// scenarioFromText builds a scenario from one polyline per non-blank line
func scenarioFromText(name, text string) *engine.ScenarioConfig {
	var paths []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paths = append(paths, line)
		}
	}
	return &engine.ScenarioConfig{Name: name, Paths: paths}
}
