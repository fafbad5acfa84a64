package engine

import "fmt"

// Kind tags an occupied cell. Fall behaviour never depends on it.
type Kind string

const (
	Rock Kind = "rock"
	Sand Kind = "sand"
)

// Policy selects the termination rule of a run
type Policy string

const (
	// VoidOverflow has no floor. The first grain that falls past the lowest
	// rock halts the run and is not counted.
	VoidOverflow Policy = "void_overflow"
	// FloorSaturation adds an infinite floor two rows below the lowest rock.
	// The run halts when a grain comes to rest on the source; that grain counts.
	FloorSaturation Policy = "floor_saturation"
)

// RunStatus is the state machine position of a run
type RunStatus string

const (
	StatusIdle            RunStatus = "idle"
	StatusDropping        RunStatus = "dropping"
	StatusHaltedVoid      RunStatus = "halted_void"
	StatusHaltedSaturated RunStatus = "halted_saturated"
)

// Outcome reports how a single grain finished falling
type Outcome string

const (
	OutcomeRested     Outcome = "rested"
	OutcomeOverflowed Outcome = "overflowed"
)

// Simulation constants
const (
	DefaultSourceX = 500
	DefaultSourceY = 0
	MaxBulkDrops   = 10000
	// FloorOffset is the distance from the lowest rock to the virtual floor
	FloorOffset = 2
)

// DefaultSource is where grains enter the cave unless a scenario says otherwise
var DefaultSource = Position{X: DefaultSourceX, Y: DefaultSourceY}

// Position represents a cell in the cave. Y grows downward.
type Position struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Add returns the position offset by dx, dy
func (p Position) Add(dx, dy int) Position {
	return Position{X: p.X + dx, Y: p.Y + dy}
}

// Less orders positions by row, then column
func (p Position) Less(o Position) bool {
	if p.Y != o.Y {
		return p.Y < o.Y
	}
	return p.X < o.X
}

func (p Position) String() string {
	return fmt.Sprintf("%d,%d", p.X, p.Y)
}

// Cell is an occupied position with its diagnostic kind
type Cell struct {
	X    int  `json:"x"`
	Y    int  `json:"y"`
	Kind Kind `json:"kind"`
}

// Position returns the cell's coordinates
func (c Cell) Position() Position {
	return Position{X: c.X, Y: c.Y}
}

// Fall describes where a grain went after leaving the source
type Fall struct {
	Rest    Position `json:"rest"`
	Outcome Outcome  `json:"outcome"`
	Steps   int      `json:"steps"`
}

// GrainRecord is one entry in a run's grain history
type GrainRecord struct {
	Number    int      `json:"number"`
	Outcome   Outcome  `json:"outcome"`
	Position  Position `json:"position"`
	Steps     int      `json:"steps"`
	Settled   int      `json:"settled"`
	Timestamp int64    `json:"timestamp"`
}

// ScenarioConfig describes a cave: its rock polylines, source and policy
type ScenarioConfig struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Source      *Position `json:"source,omitempty" yaml:"source,omitempty"`
	Policy      Policy    `json:"policy,omitempty" yaml:"policy,omitempty"`
	Paths       []string  `json:"paths" yaml:"paths"`
}

// SimState is a snapshot of a run as exposed to transports
type SimState struct {
	Run
	ScenarioName string        `json:"scenario_name"`
	Settled      int           `json:"settled"`
	Dropped      int           `json:"dropped"`
	LastGrain    *GrainRecord  `json:"last_grain,omitempty"`
	Message      string        `json:"message"`
	History      []GrainRecord `json:"-"`
}
