package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/wricardo/sandfall/sim/engine"
)

// ErrRunHalted is returned when grains are dropped into a halted run
var ErrRunHalted = engine.ErrRunHalted

// MaxReportedGrains caps the grain records returned by a single drop
const MaxReportedGrains = 100

// InlineScenarioID identifies solves built from request paths
const InlineScenarioID = "inline"

// simServiceImpl implements the SimulationService interface
type simServiceImpl struct {
	sessions SessionManager
	configs  ConfigManager
	results  ResultStore
	mu       sync.RWMutex
}

// NewSimulationService creates a new simulation service. results may be nil,
// in which case finished runs are not recorded.
func NewSimulationService(sessions SessionManager, configs ConfigManager, results ResultStore) SimulationService {
	return &simServiceImpl{
		sessions: sessions,
		configs:  configs,
		results:  results,
	}
}

// getScenarioID returns the scenario_id for a display name, used for consistent API responses
func (s *simServiceImpl) getScenarioID(name string) string {
	scenarios, err := s.configs.ListConfigs()
	if err == nil {
		for _, sc := range scenarios {
			if sc.Name == name {
				return sc.ScenarioID
			}
		}
	}
	if name == "" {
		return "default"
	}
	return name
}

// CreateSession creates a new simulation session
func (s *simServiceImpl) CreateSession(ctx context.Context, scenarioID, policy string) (*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	config, err := s.resolveScenario(scenarioID)
	if err != nil {
		return nil, err
	}

	p := config.EffectivePolicy()
	if policy != "" {
		if p, err = engine.ParsePolicy(policy); err != nil {
			return nil, err
		}
	}

	// Let session manager generate a proper 4-character ID
	sess, err := s.sessions.Create("", config, p)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	sess.ScenarioID = scenarioID
	if sess.ScenarioID == "" {
		sess.ScenarioID = s.getScenarioID(config.Name)
	}

	return sessionInfo(sess), nil
}

// resolveScenario loads a scenario by ID, the default for an empty ID
func (s *simServiceImpl) resolveScenario(scenarioID string) (*engine.ScenarioConfig, error) {
	if scenarioID == "" {
		return s.configs.GetDefault(), nil
	}
	config, err := s.configs.LoadConfig(scenarioID)
	if err == nil {
		return config, nil
	}
	if errors.Is(err, ErrConfigNotFound) {
		available, listErr := s.configs.ListConfigs()
		if listErr == nil && len(available) > 0 {
			ids := make([]string, 0, len(available))
			for _, sc := range available {
				ids = append(ids, sc.ScenarioID)
			}
			return nil, fmt.Errorf("scenario '%s' not found. Available scenarios: %v: %w", scenarioID, ids, err)
		}
		return nil, fmt.Errorf("scenario '%s' not found. Use /api/scenarios to list available scenarios: %w", scenarioID, err)
	}
	return nil, fmt.Errorf("failed to load scenario %s: %w", scenarioID, err)
}

// GetSession retrieves session information
func (s *simServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	// Exclusive: UpdateLastAccessed writes the session
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	s.sessions.UpdateLastAccessed(sessionID)
	return sessionInfo(sess), nil
}

// ListSessions returns all active sessions
func (s *simServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := s.sessions.List()
	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, sessionInfo(sess))
	}
	return result, nil
}

// DeleteSession removes a session
func (s *simServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sessions.Delete(sessionID)
}

// Drop releases up to count grains into a session's run
func (s *simServiceImpl) Drop(ctx context.Context, sessionID string, count int, reset bool) (*DropResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	s.sessions.UpdateLastAccessed(sessionID)

	if count <= 0 {
		count = 1
	}
	result := &DropResult{Requested: count}
	if count > engine.MaxBulkDrops {
		count = engine.MaxBulkDrops
		result.Truncated = true
		result.Limit = engine.MaxBulkDrops
	}

	var events []SimEvent
	if reset {
		events = append(events, s.resetSession(sess))
	}
	if sess.Engine.IsHalted() {
		return nil, fmt.Errorf("%w: session %s is %s, reset to start over", ErrRunHalted, sess.ID, sess.Engine.GetStatus())
	}

	start := time.Now()
	result.SettledBefore = sess.Engine.GetSettled()
	records, err := sess.Engine.Drop(count)
	if err != nil {
		return nil, fmt.Errorf("drop failed: %w", err)
	}

	s.completeResult(result, sess, records, events, time.Since(start))
	return result, nil
}

// RunToCompletion drops grains until the session's run halts
func (s *simServiceImpl) RunToCompletion(ctx context.Context, sessionID string, reset bool) (*DropResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	s.sessions.UpdateLastAccessed(sessionID)

	var events []SimEvent
	if reset {
		events = append(events, s.resetSession(sess))
	}
	if sess.Engine.IsHalted() {
		return nil, fmt.Errorf("%w: session %s is %s, reset to start over", ErrRunHalted, sess.ID, sess.Engine.GetStatus())
	}

	start := time.Now()
	before := sess.Engine.GetSettled()
	droppedBefore := sess.Engine.GetState().Dropped
	if _, err := sess.Engine.RunToCompletion(ctx); err != nil {
		return nil, fmt.Errorf("run interrupted: %w", err)
	}

	history := sess.Engine.GetHistory()
	records := append([]engine.GrainRecord(nil), history[droppedBefore:]...)
	result := &DropResult{Requested: len(records), SettledBefore: before}
	s.completeResult(result, sess, records, events, time.Since(start))
	return result, nil
}

// completeResult fills the summary of a drop and records the run when it
// halted. The result carries a snapshot so it can be encoded after the lock
// is released.
func (s *simServiceImpl) completeResult(result *DropResult, sess *Session, records []engine.GrainRecord, events []SimEvent, elapsed time.Duration) {
	state := sess.Engine.Snapshot()
	result.Dropped = len(records)
	result.SettledAfter = state.Settled
	result.Status = state.Status
	result.Halted = state.Halted()
	result.SimState = state
	result.Message = state.Message

	if len(records) > MaxReportedGrains {
		result.Grains = records[len(records)-MaxReportedGrains:]
	} else {
		result.Grains = records
	}

	if n := len(records); n > 0 {
		last := records[n-1]
		events = append(events, SimEvent{
			Type:      "rested",
			Message:   fmt.Sprintf("%d grains came to rest", result.SettledAfter-result.SettledBefore),
			Timestamp: time.Now(),
			Position:  last.Position,
			Grain:     last.Number,
		})
		if result.Halted {
			result.StopReasonCode = string(state.Status)
			result.StoppedOnGrain = last.Number
			events = append(events, haltEvent(state, last))
		}
	}
	if events == nil {
		events = []SimEvent{}
	}
	result.Events = events

	if result.Halted {
		result.Result = s.recordSession(sess, elapsed)
	}
}

// recordSession writes a halted session run to the result store once
func (s *simServiceImpl) recordSession(sess *Session, elapsed time.Duration) *RunRecord {
	if s.results == nil || sess.Recorded || !sess.Engine.IsHalted() {
		return nil
	}
	state := sess.Engine.GetState()
	record := &RunRecord{
		ID:         newRecordID(),
		SessionID:  sess.ID,
		ScenarioID: sess.ScenarioID,
		Policy:     state.Policy,
		Status:     state.Status,
		Settled:    state.Settled,
		Dropped:    state.Dropped,
		FloorLevel: state.FloorLevel,
		Source:     state.Source,
		DurationMs: elapsed.Milliseconds(),
		RecordedAt: time.Now().UTC(),
	}
	if last := state.LastGrain; last != nil {
		record.FinalGrain = last.Position
	}
	if err := s.results.Save(record); err != nil {
		log.Printf("Warning: Failed to record result for session %s: %v", sess.ID, err)
		return nil
	}
	sess.Recorded = true
	return record
}

func (s *simServiceImpl) resetSession(sess *Session) SimEvent {
	state := sess.Engine.Reset()
	sess.Recorded = false
	return SimEvent{
		Type:      "reset",
		Message:   "Run reset to bare rock",
		Timestamp: time.Now(),
		Position:  state.Source,
	}
}

// Reset resets a session's run
func (s *simServiceImpl) Reset(ctx context.Context, sessionID string) (*engine.SimState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	s.sessions.UpdateLastAccessed(sessionID)
	s.resetSession(sess)
	return sess.Engine.Snapshot(), nil
}

// GetSimState retrieves the current run state
func (s *simServiceImpl) GetSimState(ctx context.Context, sessionID string) (*engine.SimState, error) {
	// Exclusive: UpdateLastAccessed writes the session
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	s.sessions.UpdateLastAccessed(sessionID)
	return sess.Engine.Snapshot(), nil
}

// GetGrainHistory returns paginated grain history
func (s *simServiceImpl) GetGrainHistory(ctx context.Context, sessionID string, opts HistoryOptions) (*HistoryResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	history := sess.Engine.GetHistory()
	total := len(history)

	// Apply defaults
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	if opts.Order == "" {
		opts.Order = "desc"
	}

	totalPages := (total + opts.Limit - 1) / opts.Limit
	if totalPages == 0 {
		totalPages = 1
	}

	start := (opts.Page - 1) * opts.Limit
	end := start + opts.Limit
	if end > total {
		end = total
	}

	var grains []engine.GrainRecord
	if opts.Order == "desc" {
		// Most recent first
		for i := total - 1 - start; i >= 0 && i >= total-end; i-- {
			grains = append(grains, history[i])
		}
	} else if start < total {
		grains = history[start:end]
	}
	if grains == nil {
		grains = []engine.GrainRecord{}
	}

	return &HistoryResponse{
		Grains:      grains,
		TotalGrains: total,
		Page:        opts.Page,
		PageSize:    opts.Limit,
		TotalPages:  totalPages,
		HasNext:     opts.Page < totalPages,
		HasPrevious: opts.Page > 1,
	}, nil
}

// Render draws a session's cave
func (s *simServiceImpl) Render(ctx context.Context, sessionID string) (*RenderResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	state := sess.Engine.GetState()
	return &RenderResult{
		SessionID: sess.ID,
		Rows:      sess.Engine.Render(),
		Bounds:    engine.ViewBounds(&state.Run),
		Legend:    RenderLegend(),
	}, nil
}

// RenderLegend describes the render symbols
func RenderLegend() map[string]string {
	return map[string]string{
		string(engine.SymbolRock):   "rock",
		string(engine.SymbolSand):   "sand",
		string(engine.SymbolSource): "source",
		string(engine.SymbolAir):    "air",
	}
}

// Solve runs a scenario to completion without creating a session
func (s *simServiceImpl) Solve(ctx context.Context, req SolveRequest) (*SolveResult, error) {
	config, scenarioID, err := s.solveScenario(req)
	if err != nil {
		return nil, err
	}

	policies := engine.Policies
	if req.Policy != "" {
		p, err := engine.ParsePolicy(req.Policy)
		if err != nil {
			return nil, err
		}
		policies = []engine.Policy{p}
	}

	rocks, err := config.Rocks()
	if err != nil {
		return nil, err
	}

	out := &SolveResult{
		ScenarioID:   scenarioID,
		ScenarioName: config.Name,
		Source:       config.SourcePosition(),
		RockCount:    len(rocks),
	}
	for _, p := range policies {
		start := time.Now()
		run, err := engine.NewRun(rocks, config.SourcePosition(), p)
		if err != nil {
			return nil, err
		}
		fall, err := run.Complete(ctx)
		if err != nil {
			return nil, fmt.Errorf("solve %s: %w", p, err)
		}
		elapsed := time.Since(start)
		out.FloorLevel = run.FloorLevel

		pr := PolicyResult{
			Policy:     p,
			Settled:    run.SettledCount(),
			Dropped:    run.SettledCount(),
			Status:     run.Status,
			FinalGrain: fall.Rest,
			DurationMs: elapsed.Milliseconds(),
		}
		if run.Status == engine.StatusHaltedVoid {
			pr.Dropped++
		}
		if rec := s.recordSolve(scenarioID, run, pr); rec != nil {
			pr.RecordID = rec.ID
		}
		out.Results = append(out.Results, pr)
	}
	return out, nil
}

func (s *simServiceImpl) solveScenario(req SolveRequest) (*engine.ScenarioConfig, string, error) {
	if len(req.Paths) > 0 {
		config := &engine.ScenarioConfig{
			Name:   "Inline scenario",
			Source: req.Source,
			Paths:  req.Paths,
		}
		if err := engine.ValidateScenarioConfig(config); err != nil {
			return nil, "", err
		}
		return config, InlineScenarioID, nil
	}

	config, err := s.resolveScenario(req.Scenario)
	if err != nil {
		return nil, "", err
	}
	scenarioID := req.Scenario
	if scenarioID == "" {
		scenarioID = s.getScenarioID(config.Name)
	}
	if req.Source != nil {
		c := *config
		c.Source = req.Source
		if err := engine.ValidateScenarioConfig(&c); err != nil {
			return nil, "", err
		}
		config = &c
	}
	return config, scenarioID, nil
}

func (s *simServiceImpl) recordSolve(scenarioID string, run *engine.Run, pr PolicyResult) *RunRecord {
	if s.results == nil {
		return nil
	}
	record := &RunRecord{
		ID:         newRecordID(),
		ScenarioID: scenarioID,
		Policy:     pr.Policy,
		Status:     pr.Status,
		Settled:    pr.Settled,
		Dropped:    pr.Dropped,
		FloorLevel: run.FloorLevel,
		Source:     run.Source,
		FinalGrain: pr.FinalGrain,
		DurationMs: pr.DurationMs,
		RecordedAt: time.Now().UTC(),
	}
	if err := s.results.Save(record); err != nil {
		log.Printf("Warning: Failed to record solve of %s: %v", scenarioID, err)
		return nil
	}
	return record
}

// ListResults returns recorded runs, most recent first
func (s *simServiceImpl) ListResults(ctx context.Context, query ResultQuery) ([]*RunRecord, error) {
	if s.results == nil {
		return []*RunRecord{}, nil
	}
	records, err := s.results.List(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	return records, nil
}

// ListScenarios returns available scenarios
func (s *simServiceImpl) ListScenarios(ctx context.Context) ([]*ScenarioInfo, error) {
	return s.configs.ListConfigs()
}

// LoadScenario loads a specific scenario
func (s *simServiceImpl) LoadScenario(ctx context.Context, scenarioID string) (*engine.ScenarioConfig, error) {
	return s.configs.LoadConfig(scenarioID)
}

// SaveScenario saves a scenario to disk
func (s *simServiceImpl) SaveScenario(ctx context.Context, scenarioID string, config *engine.ScenarioConfig) error {
	if scenarioID == "" {
		return errors.New("scenario id is required")
	}
	return s.configs.SaveConfig(scenarioID, config)
}

func sessionInfo(sess *Session) *SessionInfo {
	return &SessionInfo{
		ID:             sess.ID,
		ScenarioID:     sess.ScenarioID,
		Policy:         sess.Engine.GetPolicy(),
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessedAt,
		SimState:       sess.Engine.Snapshot(),
		Scenario:       sess.Config,
	}
}

func haltEvent(state *engine.SimState, last engine.GrainRecord) SimEvent {
	ev := SimEvent{
		Timestamp: time.Now(),
		Position:  last.Position,
		Grain:     last.Number,
		Message:   state.Message,
	}
	if state.Status == engine.StatusHaltedVoid {
		ev.Type = "overflow"
	} else {
		ev.Type = "saturated"
	}
	return ev
}

// newRecordID generates a random 8-character record ID
func newRecordID() string {
	bytes := make([]byte, 4)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
