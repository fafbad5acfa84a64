// Package config provides scenario management for Sandfall.
//
// The config package handles:
//   - Loading cave scenarios from JSON or YAML files
//   - Schema checking and semantic validation
//   - Default scenario management
//   - Scenario discovery, listing and saving
//
// Scenario Format:
//
// Scenarios are stored in the configs directory as .json, .yaml or .yml
// files. Each scenario defines:
//   - A name and optional description
//   - Rock paths, one "x,y -> x,y -> ..." polyline per entry
//   - An optional sand source (defaults to 500,0)
//   - An optional halting policy (void_overflow or floor_saturation)
//
// Example:
//
//	{
//	  "name": "Example Cave",
//	  "policy": "floor_saturation",
//	  "paths": [
//	    "498,4 -> 498,6 -> 496,6",
//	    "503,4 -> 502,4 -> 502,9 -> 494,9"
//	  ]
//	}
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//
//	// Load a specific scenario
//	scenario, err := manager.LoadConfig("funnel")
//
//	// List available scenarios
//	infos, err := manager.ListConfigs()
//
//	// Get the default scenario
//	defaultScenario := manager.GetDefault()
//
// Validation:
//
// Every document is first checked against ScenarioSchema, then decoded and
// validated by the engine: paths must rasterize, the source must be outside
// rock and above the floor level. Invalid files are skipped when listing.
package config
