package service

import (
	"context"
	"errors"
	"time"

	"github.com/wricardo/sandfall/sim/engine"
)

// SimulationService defines all simulation operations
type SimulationService interface {
	// Session Management
	CreateSession(ctx context.Context, scenarioID, policy string) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Simulation Operations
	Drop(ctx context.Context, sessionID string, count int, reset bool) (*DropResult, error)
	RunToCompletion(ctx context.Context, sessionID string, reset bool) (*DropResult, error)
	Reset(ctx context.Context, sessionID string) (*engine.SimState, error)

	// Simulation State
	GetSimState(ctx context.Context, sessionID string) (*engine.SimState, error)
	GetGrainHistory(ctx context.Context, sessionID string, opts HistoryOptions) (*HistoryResponse, error)
	Render(ctx context.Context, sessionID string) (*RenderResult, error)

	// One-shot runs and the result ledger
	Solve(ctx context.Context, req SolveRequest) (*SolveResult, error)
	ListResults(ctx context.Context, query ResultQuery) ([]*RunRecord, error)

	// Scenarios
	ListScenarios(ctx context.Context) ([]*ScenarioInfo, error)
	LoadScenario(ctx context.Context, scenarioID string) (*engine.ScenarioConfig, error)
	SaveScenario(ctx context.Context, scenarioID string, config *engine.ScenarioConfig) error
}

// SessionManager defines session storage operations
type SessionManager interface {
	Create(id string, config *engine.ScenarioConfig, policy engine.Policy) (*Session, error)
	Get(id string) (*Session, error)
	List() []*Session
	Delete(id string) error
	UpdateLastAccessed(id string) error
}

// ErrConfigNotFound is wrapped by ConfigManager.LoadConfig when no scenario
// has the requested name
var ErrConfigNotFound = errors.New("configuration not found")

// ConfigManager handles scenario loading
type ConfigManager interface {
	LoadConfig(name string) (*engine.ScenarioConfig, error)
	ListConfigs() ([]*ScenarioInfo, error)
	GetDefault() *engine.ScenarioConfig
	SaveConfig(name string, config *engine.ScenarioConfig) error
}

// ResultStore persists finished run records
type ResultStore interface {
	Save(record *RunRecord) error
	Load(id string) (*RunRecord, error)
	List(query ResultQuery) ([]*RunRecord, error)
	Delete(id string) error
	Exists(id string) bool
}

// Session represents an active simulation session
type Session struct {
	ID             string
	ScenarioID     string
	Engine         *engine.SimEngine
	Config         *engine.ScenarioConfig
	CreatedAt      time.Time
	LastAccessedAt time.Time
	// Recorded is set once the halted run has been written to the result store
	Recorded bool
}
