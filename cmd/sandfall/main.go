// Command sandfall runs cave scenarios from the terminal without a server.
//
// Subcommands:
//   - solve: count the grains that settle under one or both policies
//   - analyze: summarize every scenario in the scenarios directory
//   - render: draw the cave after a number of grains, or after the run halts
//   - watch: animate the run in the terminal
//
// Input is a scenario file (.json, .yaml, .yml), a text file with one
// "x,y -> x,y" polyline per line, "-" for stdin, or a scenario name looked
// up in the scenarios directory with --scenario.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/wricardo/sandfall/sim/config"
	"github.com/wricardo/sandfall/sim/engine"
	"github.com/wricardo/sandfall/sim/service"
)

var version = "1.0.0"

func main() {
	app := newApp(os.Stdin, os.Stdout)
	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(stdin io.Reader, out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "sandfall",
		Usage:   "Falling sand cave simulator",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config-dir",
				Value:   "configs",
				Usage:   "Directory containing scenarios",
				Sources: cli.EnvVars("CONFIG_DIR"),
			},
		},
		Commands: []*cli.Command{
			newSolveCmd(stdin, out),
			newAnalyzeCmd(out),
			newRenderCmd(stdin, out),
			newWatchCmd(stdin),
		},
	}
}

// inputFlags are shared by every command that runs a single cave
func inputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "scenario",
			Usage: "Scenario name from the scenarios directory",
		},
		&cli.StringFlag{
			Name:  "source",
			Usage: `Override the source as "x,y"`,
		},
		&cli.StringFlag{
			Name:  "policy",
			Usage: "void_overflow or floor_saturation",
		},
	}
}

func newSolveCmd(stdin io.Reader, out io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "solve",
		Usage:     "Count the grains that come to rest",
		ArgsUsage: "[file|-]",
		Flags: append(inputFlags(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output as JSON",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			scenario, id, err := loadScenario(cmd, stdin)
			if err != nil {
				return err
			}
			policies, err := selectPolicies(cmd.String("policy"))
			if err != nil {
				return err
			}

			result, err := solve(ctx, id, scenario, policies)
			if err != nil {
				return err
			}

			if cmd.Bool("json") {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			for _, pr := range result.Results {
				fmt.Fprintf(out, "%s: %d\n", pr.Policy, pr.Settled)
			}
			return nil
		},
	}
}

func newAnalyzeCmd(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Summarize every scenario in a directory",
		ArgsUsage: "[dir]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			dir := cmd.String("config-dir")
			if cmd.Args().Len() > 0 {
				dir = cmd.Args().First()
			}
			manager, err := config.NewManager(dir)
			if err != nil {
				return err
			}
			scenarios, err := manager.ListConfigs()
			if err != nil {
				return err
			}
			if len(scenarios) == 0 {
				return fmt.Errorf("no scenarios found in %s", dir)
			}

			for _, info := range scenarios {
				fmt.Fprintf(out, "\n=== Analyzing %s ===\n", info.Filename)
				scenario, err := manager.LoadConfig(info.ScenarioID)
				if err != nil {
					fmt.Fprintf(out, "Error loading scenario: %v\n", err)
					continue
				}
				if err := analyze(ctx, out, info.ScenarioID, scenario); err != nil {
					fmt.Fprintf(out, "Error solving scenario: %v\n", err)
				}
			}
			return nil
		},
	}
}

func analyze(ctx context.Context, out io.Writer, id string, scenario *engine.ScenarioConfig) error {
	rocks, err := scenario.Rocks()
	if err != nil {
		return err
	}
	b, _ := engine.NewRockMap(rocks).Bounds()

	fmt.Fprintf(out, "Name: %s\n", scenario.Name)
	if scenario.Description != "" {
		fmt.Fprintf(out, "Description: %s\n", scenario.Description)
	}
	fmt.Fprintf(out, "Rock extent: x=%d..%d y=%d..%d\n", b.Min.X, b.Max.X, b.Min.Y, b.Max.Y)
	fmt.Fprintf(out, "Rock cells: %d\n", len(rocks))
	fmt.Fprintf(out, "Source: %s\n", scenario.SourcePosition())

	result, err := solve(ctx, id, scenario, engine.Policies)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Floor level: %d\n", result.FloorLevel)
	for _, pr := range result.Results {
		fmt.Fprintf(out, "%s: %d grains settle, last at %s (%dms)\n", pr.Policy, pr.Settled, pr.FinalGrain, pr.DurationMs)
	}
	return nil
}

func newRenderCmd(stdin io.Reader, out io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Draw the cave",
		ArgsUsage: "[file|-]",
		Flags: append(inputFlags(),
			&cli.IntFlag{
				Name:  "grains",
				Value: -1,
				Usage: "Grains to drop before drawing; negative runs until the run halts",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			scenario, _, err := loadScenario(cmd, stdin)
			if err != nil {
				return err
			}
			policy := scenario.EffectivePolicy()
			if p := cmd.String("policy"); p != "" {
				if policy, err = engine.ParsePolicy(p); err != nil {
					return err
				}
			}

			rocks, err := scenario.Rocks()
			if err != nil {
				return err
			}
			run, err := engine.NewRun(rocks, scenario.SourcePosition(), policy)
			if err != nil {
				return err
			}

			if grains := int(cmd.Int("grains")); grains < 0 {
				if _, err := run.Complete(ctx); err != nil {
					return err
				}
			} else {
				for i := 0; i < grains && !run.Halted(); i++ {
					if _, err := run.Drop(); err != nil {
						return err
					}
				}
			}

			fmt.Fprintln(out, strings.Join(engine.Render(run), "\n"))
			fmt.Fprintf(out, "\n%s: %d settled (%s)\n", run.Policy, run.SettledCount(), run.Status)
			return nil
		},
	}
}

func newWatchCmd(stdin io.Reader) *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Animate the run in the terminal",
		ArgsUsage: "[file|-]",
		Flags: append(inputFlags(),
			&cli.DurationFlag{
				Name:  "delay",
				Value: 30 * time.Millisecond,
				Usage: "Time between frames",
			},
			&cli.IntFlag{
				Name:  "batch",
				Value: 1,
				Usage: "Grains dropped per frame",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			scenario, _, err := loadScenario(cmd, stdin)
			if err != nil {
				return err
			}
			policy := scenario.EffectivePolicy()
			if p := cmd.String("policy"); p != "" {
				if policy, err = engine.ParsePolicy(p); err != nil {
					return err
				}
			}
			return watch(ctx, scenario, policy, cmd.Duration("delay"), int(cmd.Int("batch")))
		},
	}
}

// selectPolicies returns the named policy, or every policy when name is empty
func selectPolicies(name string) ([]engine.Policy, error) {
	if name == "" {
		return engine.Policies, nil
	}
	p, err := engine.ParsePolicy(name)
	if err != nil {
		return nil, err
	}
	return []engine.Policy{p}, nil
}

// solve runs the scenario to completion under each policy
func solve(ctx context.Context, id string, scenario *engine.ScenarioConfig, policies []engine.Policy) (*service.SolveResult, error) {
	rocks, err := scenario.Rocks()
	if err != nil {
		return nil, err
	}

	result := &service.SolveResult{
		ScenarioID:   id,
		ScenarioName: scenario.Name,
		Source:       scenario.SourcePosition(),
		RockCount:    len(rocks),
	}
	for _, policy := range policies {
		start := time.Now()
		run, err := engine.NewRun(rocks, scenario.SourcePosition(), policy)
		if err != nil {
			return nil, err
		}
		fall, err := run.Complete(ctx)
		if err != nil {
			return nil, fmt.Errorf("solve %s: %w", policy, err)
		}
		result.FloorLevel = run.FloorLevel
		result.Results = append(result.Results, service.PolicyResult{
			Policy:     policy,
			Settled:    run.SettledCount(),
			Dropped:    run.SettledCount() + overflowed(run.Status),
			Status:     run.Status,
			FinalGrain: fall.Rest,
			DurationMs: time.Since(start).Milliseconds(),
		})
	}
	return result, nil
}

func overflowed(status engine.RunStatus) int {
	if status == engine.StatusHaltedVoid {
		return 1
	}
	return 0
}
