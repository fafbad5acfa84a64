// Command validate provides a small CLI that validates scenario files in the
// ../configs directory (or the directory given as the first argument). It checks:
//   - JSON or YAML structure against the scenario schema
//   - Path syntax: "x,y" vertices joined by "->", at least two per path
//   - Source placement: above the lowest rock and not inside any
//   - Policy name, when one is given
//
// Valid scenarios are then run to completion under both policies and the
// settled grain counts are reported.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wricardo/sandfall/sim/config"
	"github.com/wricardo/sandfall/sim/engine"
)

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File   string
	Valid  bool
	Errors []string
}

func (r *ValidationResult) fail(format string, args ...interface{}) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) info(format string, args ...interface{}) {
	r.Errors = append(r.Errors, "✓ "+fmt.Sprintf(format, args...))
}

// validateScenario loads and validates a single scenario file. Structural
// problems stop validation early; a valid cave is solved under every policy.
func validateScenario(filePath string) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Valid:  true,
		Errors: []string{},
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.fail("Failed to read file: %v", err)
		return result
	}

	ext := filepath.Ext(filePath)
	if err := config.ValidateDocument(data, ext); err != nil {
		result.fail("Schema violation: %v", err)
		return result
	}

	scenario, err := engine.DecodeScenario(data, ext)
	if err != nil {
		result.fail("Invalid document: %v", err)
		return result
	}

	for i, line := range scenario.Paths {
		if _, err := engine.ParsePath(line); err != nil {
			result.fail("Path %d: %v", i+1, err)
		}
	}
	if !result.Valid {
		return result
	}

	if err := engine.ValidateScenarioConfig(scenario); err != nil {
		result.fail("%v", err)
		return result
	}

	rocks, err := scenario.Rocks()
	if err != nil {
		result.fail("Failed to rasterize paths: %v", err)
		return result
	}

	occupancy := engine.NewRockMap(rocks)
	b, _ := occupancy.Bounds()
	b = b.Extend(scenario.SourcePosition())

	result.info("Name: %s", scenario.Name)
	result.info("Paths: %d", len(scenario.Paths))
	result.info("Rock cells: %d", occupancy.Count())
	result.info("Extent: x=%d..%d y=%d..%d", b.Min.X, b.Max.X, b.Min.Y, b.Max.Y)
	result.info("Source: %s", scenario.SourcePosition())
	result.info("Default policy: %s", scenario.EffectivePolicy())

	for _, policy := range engine.Policies {
		run, err := engine.NewRun(rocks, scenario.SourcePosition(), policy)
		if err != nil {
			result.fail("%s: %v", policy, err)
			continue
		}
		if _, err := run.Complete(context.Background()); err != nil {
			result.fail("%s: %v", policy, err)
			continue
		}
		if policy == engine.VoidOverflow {
			result.info("Floor level: %d", run.FloorLevel)
		}
		result.info("%s: %d grains settle (%s)", policy, run.SettledCount(), run.Status)
	}

	return result
}

// scenarioFiles returns every JSON and YAML file in dir, sorted by name
func scenarioFiles(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.json", "*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

// main scans the scenario directory and validates each file, printing a
// concise report and exiting with non-zero status if any are invalid.
func main() {
	configDir := "../configs"
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	files, err := scenarioFiles(configDir)
	if err != nil {
		fmt.Printf("Error finding scenario files: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Printf("No scenario files found in %s\n", configDir)
		os.Exit(1)
	}

	allValid := true
	for _, file := range files {
		result := validateScenario(file)

		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Errors {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				if !strings.HasPrefix(err, "✓") {
					fmt.Println("  ❌ " + err)
				}
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All scenarios are valid!")
	} else {
		fmt.Println("❌ Some scenarios have errors")
		os.Exit(1)
	}
}
