package service

import (
	"time"

	"github.com/wricardo/sandfall/sim/engine"
)

// SessionInfo provides information about a simulation session
type SessionInfo struct {
	ID             string                 `json:"id"`
	ScenarioID     string                 `json:"scenario_id"`
	Policy         engine.Policy          `json:"policy"`
	CreatedAt      time.Time              `json:"created_at"`
	LastAccessedAt time.Time              `json:"last_accessed_at"`
	SimState       *engine.SimState       `json:"sim_state"`
	Scenario       *engine.ScenarioConfig `json:"scenario"`
}

// DropResult contains the result of dropping one or more grains
type DropResult struct {
	// Summary
	Requested      int              `json:"requested"`
	Dropped        int              `json:"dropped"`
	SettledBefore  int              `json:"settled_before"`
	SettledAfter   int              `json:"settled_after"`
	Truncated      bool             `json:"truncated,omitempty"`
	Limit          int              `json:"limit,omitempty"`
	Halted         bool             `json:"halted"`
	Status         engine.RunStatus `json:"status"`
	StopReasonCode string           `json:"stop_reason_code,omitempty"` // halted_void|halted_saturated
	StoppedOnGrain int              `json:"stopped_on_grain,omitempty"` // number of the grain that halted the run

	// Most recent grains of this call, capped at MaxReportedGrains
	Grains []engine.GrainRecord `json:"grains,omitempty"`
	Events []SimEvent           `json:"events"`

	SimState *engine.SimState `json:"sim_state"`
	Message  string           `json:"message,omitempty"`
	Result   *RunRecord       `json:"result,omitempty"`
}

// SimEvent represents a notable moment in a run
type SimEvent struct {
	Type      string          `json:"type"` // "reset", "rested", "overflow", "saturated"
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
	Position  engine.Position `json:"position"`
	Grain     int             `json:"grain,omitempty"`
}

// HistoryOptions configures grain history retrieval
type HistoryOptions struct {
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Order string `json:"order"` // "asc" or "desc"
}

// HistoryResponse contains paginated grain history
type HistoryResponse struct {
	Grains      []engine.GrainRecord `json:"grains"`
	TotalGrains int                  `json:"total_grains"`
	Page        int                  `json:"page"`
	PageSize    int                  `json:"page_size"`
	TotalPages  int                  `json:"total_pages"`
	HasNext     bool                 `json:"has_next"`
	HasPrevious bool                 `json:"has_previous"`
}

// RenderResult is a text drawing of a session's cave
type RenderResult struct {
	SessionID string            `json:"session_id"`
	Rows      []string          `json:"rows"`
	Bounds    engine.Bounds     `json:"bounds"`
	Legend    map[string]string `json:"legend"`
}

// SolveRequest asks for a one-shot run. Paths take precedence over Scenario.
// An empty Policy solves under every policy.
type SolveRequest struct {
	Scenario string           `json:"scenario,omitempty"`
	Paths    []string         `json:"paths,omitempty"`
	Source   *engine.Position `json:"source,omitempty"`
	Policy   string           `json:"policy,omitempty"`
}

// SolveResult holds the outcome of a one-shot run
type SolveResult struct {
	ScenarioID   string          `json:"scenario_id"`
	ScenarioName string          `json:"scenario_name"`
	Source       engine.Position `json:"source"`
	FloorLevel   int             `json:"floor_level"`
	RockCount    int             `json:"rock_count"`
	Results      []PolicyResult  `json:"results"`
}

// PolicyResult is the outcome of one policy in a solve
type PolicyResult struct {
	Policy     engine.Policy    `json:"policy"`
	Settled    int              `json:"settled"`
	Dropped    int              `json:"dropped"`
	Status     engine.RunStatus `json:"status"`
	FinalGrain engine.Position  `json:"final_grain"`
	DurationMs int64            `json:"duration_ms"`
	RecordID   string           `json:"record_id,omitempty"`
}

// RunRecord is a finished run written to the result ledger
type RunRecord struct {
	ID         string           `json:"id"`
	SessionID  string           `json:"session_id,omitempty"`
	ScenarioID string           `json:"scenario_id"`
	Policy     engine.Policy    `json:"policy"`
	Status     engine.RunStatus `json:"status"`
	Settled    int              `json:"settled"`
	Dropped    int              `json:"dropped"`
	FloorLevel int              `json:"floor_level"`
	Source     engine.Position  `json:"source"`
	FinalGrain engine.Position  `json:"final_grain"`
	DurationMs int64            `json:"duration_ms"`
	RecordedAt time.Time        `json:"recorded_at"`
}

// ResultQuery filters the result ledger. Zero values match everything.
type ResultQuery struct {
	ScenarioID string        `json:"scenario_id,omitempty"`
	Policy     engine.Policy `json:"policy,omitempty"`
	Limit      int           `json:"limit,omitempty"`
}

// Matches reports whether the record passes the query filters
func (q ResultQuery) Matches(r *RunRecord) bool {
	if q.ScenarioID != "" && q.ScenarioID != r.ScenarioID {
		return false
	}
	if q.Policy != "" && q.Policy != r.Policy {
		return false
	}
	return true
}

// ScenarioInfo provides information about a scenario file
type ScenarioInfo struct {
	Filename    string          `json:"filename"`
	ScenarioID  string          `json:"scenario_id"` // The identifier to use for session creation
	Name        string          `json:"name"`        // Display name
	Description string          `json:"description"`
	Policy      engine.Policy   `json:"policy"`
	Source      engine.Position `json:"source"`
	PathCount   int             `json:"path_count"`
	RockCount   int             `json:"rock_count"`
	FloorLevel  int             `json:"floor_level"`
}
