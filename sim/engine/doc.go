// Package engine provides the core simulation logic for Sandfall.
//
// The engine package implements the falling-grain mechanics including:
//   - Parsing and rasterizing rock polylines
//   - Sparse, insert-only occupancy of the cave
//   - The per-grain fall rule (down, down-left, down-right)
//   - The void overflow and floor saturation termination policies
//   - Stepwise run state with grain history and text rendering
//
// Core Types:
//
// Run owns the occupancy of a single simulation and drops grains into it.
// SimEngine wraps a Run with history and implements the Engine interface used
// by sessions. ScenarioConfig describes a cave loaded from JSON or YAML.
//
// Usage:
//
//	rocks, err := engine.RocksFromText(input)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	settled, err := engine.Simulate(rocks, engine.DefaultSource, engine.FloorSaturation)
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Rules:
//
// Grains enter one at a time at the source. Each step a grain moves to the
// first free cell of down, down-left and down-right, and rests when all three
// are blocked. Under void overflow the run halts on the first grain that falls
// below the lowest rock, which is not counted. Under floor saturation an
// infinite floor sits two rows below the lowest rock and the run halts when a
// grain rests on the source, which is counted.
package engine
