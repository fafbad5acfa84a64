package engine

import (
	"context"
	"errors"
	"fmt"
)

// Error definitions
var (
	ErrMalformedInput = errors.New("malformed input")
	ErrInvalidPolicy  = errors.New("invalid policy")
	ErrNonTermination = errors.New("grain fell beyond the policy bound")
	ErrSourceBlocked  = errors.New("source is blocked")
	ErrRunHalted      = errors.New("run has halted")
)

// ctxCheckInterval is how many grains RunToCompletion drops between context checks
const ctxCheckInterval = 1024

// Run owns the occupancy of one simulation and drops grains into it
type Run struct {
	Source           Position      `json:"source"`
	Policy           Policy        `json:"policy"`
	FloorLevel       int           `json:"floor_level"`
	InitialRockCount int           `json:"initial_rock_count"`
	Status           RunStatus     `json:"status"`
	Occupancy        *OccupancyMap `json:"occupancy"`
}

// NewRun seeds a run with rock. The rock set must be non-empty and the
// source must lie above the lowest rock without being inside any.
func NewRun(rocks []Position, source Position, policy Policy) (*Run, error) {
	if !policy.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPolicy, policy)
	}
	if len(rocks) == 0 {
		return nil, fmt.Errorf("%w: rock set is empty", ErrMalformedInput)
	}
	if source.Y < 0 {
		return nil, fmt.Errorf("%w: source %s has negative y", ErrMalformedInput, source)
	}

	occupancy := NewRockMap(rocks)
	floor := 0
	for _, p := range rocks {
		if p.Y < 0 {
			return nil, fmt.Errorf("%w: rock %s has negative y", ErrMalformedInput, p)
		}
		if p.Y > floor {
			floor = p.Y
		}
	}
	if occupancy.Contains(source) {
		return nil, fmt.Errorf("%w: source %s is inside rock", ErrMalformedInput, source)
	}
	// The floor level is the lowest rock row. The source must sit above it
	// under either policy, even though a floor-saturation floor lies lower.
	if source.Y >= floor {
		return nil, fmt.Errorf("%w: source %s must lie above the floor level %d (the lowest rock row) under either policy", ErrMalformedInput, source, floor)
	}

	return &Run{
		Source:           source,
		Policy:           policy,
		FloorLevel:       floor,
		InitialRockCount: occupancy.Count(),
		Status:           StatusIdle,
		Occupancy:        occupancy,
	}, nil
}

// SettledCount returns the number of grains at rest
func (r *Run) SettledCount() int {
	return r.Occupancy.Count() - r.InitialRockCount
}

// Halted reports whether the run reached a terminal status
func (r *Run) Halted() bool {
	return r.Status.Halted()
}

// Rule returns the fall rule bound to this run's occupancy
func (r *Run) Rule() FallRule {
	return FallRule{Occupancy: r.Occupancy, FloorLevel: r.FloorLevel, Policy: r.Policy}
}

// Drop releases one grain from the source and records where it rests
func (r *Run) Drop() (Fall, error) {
	if r.Halted() {
		return Fall{}, ErrRunHalted
	}
	r.Status = StatusDropping

	fall, err := r.Rule().Settle(r.Source)
	if err != nil {
		return Fall{}, err
	}
	if fall.Outcome == OutcomeRested {
		r.Occupancy.Insert(fall.Rest, Sand)
	}
	r.Status = NextStatus(fall, r.Source)
	return fall, nil
}

// Complete drops grains until the run halts and returns the final fall.
// The context is checked every ctxCheckInterval grains.
func (r *Run) Complete(ctx context.Context) (Fall, error) {
	var last Fall
	for i := 0; !r.Halted(); i++ {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return last, err
			}
		}
		fall, err := r.Drop()
		if err != nil {
			return last, err
		}
		last = fall
	}
	return last, nil
}

// Simulate runs a fresh simulation to completion and returns the settled count
func Simulate(seed []Position, source Position, policy Policy) (int, error) {
	run, err := NewRun(seed, source, policy)
	if err != nil {
		return 0, err
	}
	if _, err := run.Complete(context.Background()); err != nil {
		return 0, err
	}
	return run.SettledCount(), nil
}
