package engine

import (
	"context"
	"fmt"
	"time"
)

// Engine provides the main interface for simulation operations
type Engine interface {
	// Run state management
	GetState() *SimState
	Snapshot() *SimState
	Reset() *SimState
	IsHalted() bool
	GetStatus() RunStatus
	GetSettled() int
	GetSource() Position
	GetPolicy() Policy

	// Dropping grains
	Step() (*GrainRecord, error)
	Drop(count int) ([]GrainRecord, error)
	RunToCompletion(ctx context.Context) (int, error)

	// Configuration
	GetConfig() *ScenarioConfig

	// History
	GetHistory() []GrainRecord
	GetLastGrain() *GrainRecord

	// View
	Render() []string
}

var _ Engine = (*SimEngine)(nil)

// SimEngine implements the Engine interface on top of a Run
type SimEngine struct {
	state  *SimState
	config *ScenarioConfig
	seed   *Run
}

// NewEngine creates an engine for the scenario using the scenario's policy
func NewEngine(config *ScenarioConfig) (*SimEngine, error) {
	if config == nil {
		return nil, fmt.Errorf("scenario validation: config cannot be nil")
	}
	return NewEngineWithPolicy(config, config.EffectivePolicy())
}

// NewEngineWithPolicy creates an engine for the scenario with an explicit policy
func NewEngineWithPolicy(config *ScenarioConfig, policy Policy) (*SimEngine, error) {
	if err := ValidateScenarioConfig(config); err != nil {
		return nil, err
	}
	rocks, err := config.Rocks()
	if err != nil {
		return nil, err
	}
	state, err := InitSimState(config.Name, rocks, config.SourcePosition(), policy)
	if err != nil {
		return nil, err
	}
	return &SimEngine{state: state, config: config, seed: cloneRun(&state.Run)}, nil
}

// NewEngineFromRocks creates an engine over an already rasterized rock set
func NewEngineFromRocks(rocks []Position, source Position, policy Policy) (*SimEngine, error) {
	state, err := InitSimState("", rocks, source, policy)
	if err != nil {
		return nil, err
	}
	return &SimEngine{state: state, seed: cloneRun(&state.Run)}, nil
}

// GetState returns the live run state. It changes with every drop.
func (e *SimEngine) GetState() *SimState {
	return e.state
}

// Snapshot returns a copy of the run state that later drops and resets do
// not touch. History is not copied.
func (e *SimEngine) Snapshot() *SimState {
	st := *e.state
	st.Run = *cloneRun(&e.state.Run)
	st.History = nil
	if e.state.LastGrain != nil {
		last := *e.state.LastGrain
		st.LastGrain = &last
	}
	return &st
}

// Reset discards every grain and returns the fresh state
func (e *SimEngine) Reset() *SimState {
	e.state = newSimState(e.state.ScenarioName, e.seed)
	return e.state
}

// IsHalted reports whether the run reached a terminal status
func (e *SimEngine) IsHalted() bool {
	return e.state.Halted()
}

// GetStatus returns the run status
func (e *SimEngine) GetStatus() RunStatus {
	return e.state.Status
}

// GetSettled returns the number of grains at rest
func (e *SimEngine) GetSettled() int {
	return e.state.Settled
}

// GetSource returns the source position
func (e *SimEngine) GetSource() Position {
	return e.state.Source
}

// GetPolicy returns the active policy
func (e *SimEngine) GetPolicy() Policy {
	return e.state.Policy
}

// GetFloorLevel returns the lowest rock row
func (e *SimEngine) GetFloorLevel() int {
	return e.state.FloorLevel
}

// Step drops a single grain
func (e *SimEngine) Step() (*GrainRecord, error) {
	st := e.state
	fall, err := st.Run.Drop()
	if err != nil {
		return nil, err
	}

	st.Dropped++
	st.Settled = st.SettledCount()
	record := GrainRecord{
		Number:    st.Dropped,
		Outcome:   fall.Outcome,
		Position:  fall.Rest,
		Steps:     fall.Steps,
		Settled:   st.Settled,
		Timestamp: time.Now().Unix(),
	}
	st.History = append(st.History, record)
	st.LastGrain = &record
	st.Message = statusMessage(st)
	return &record, nil
}

// Drop releases up to count grains, stopping early when the run halts.
// It returns the records of the grains that were dropped.
func (e *SimEngine) Drop(count int) ([]GrainRecord, error) {
	if count < 0 {
		return nil, fmt.Errorf("drop count cannot be negative: %d", count)
	}
	if e.IsHalted() {
		return nil, ErrRunHalted
	}
	records := make([]GrainRecord, 0, min(count, MaxBulkDrops))
	for i := 0; i < count && !e.IsHalted(); i++ {
		rec, err := e.Step()
		if err != nil {
			return records, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

// RunToCompletion drops grains until the run halts and returns the settled count
func (e *SimEngine) RunToCompletion(ctx context.Context) (int, error) {
	for i := 0; !e.IsHalted(); i++ {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return e.state.Settled, err
			}
		}
		if _, err := e.Step(); err != nil {
			return e.state.Settled, err
		}
	}
	return e.state.Settled, nil
}

// GetConfig returns the scenario configuration, nil for engines built from rocks
func (e *SimEngine) GetConfig() *ScenarioConfig {
	return e.config
}

// GetHistory returns every grain dropped so far
func (e *SimEngine) GetHistory() []GrainRecord {
	return e.state.History
}

// GetLastGrain returns the most recent grain, nil before the first drop
func (e *SimEngine) GetLastGrain() *GrainRecord {
	return e.state.LastGrain
}

// Render draws the cave as text
func (e *SimEngine) Render() []string {
	return Render(&e.state.Run)
}

func statusMessage(st *SimState) string {
	switch st.Status {
	case StatusHaltedVoid:
		return fmt.Sprintf("Grain %d fell into the void. %d grains came to rest.", st.Dropped, st.Settled)
	case StatusHaltedSaturated:
		return fmt.Sprintf("Source %s is blocked. %d grains came to rest.", st.Source, st.Settled)
	case StatusIdle:
		return "Ready to drop grains."
	}
	if st.LastGrain != nil {
		return fmt.Sprintf("Grain %d rested at %s.", st.LastGrain.Number, st.LastGrain.Position)
	}
	return "Dropping grains."
}
