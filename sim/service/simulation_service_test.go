package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wricardo/sandfall/sim/engine"
	"github.com/wricardo/sandfall/sim/service"
)

// MockSessionManager implements service.SessionManager for testing
type MockSessionManager struct {
	sessions map[string]*service.Session
}

func NewMockSessionManager() *MockSessionManager {
	return &MockSessionManager{
		sessions: make(map[string]*service.Session),
	}
}

func (m *MockSessionManager) Create(id string, config *engine.ScenarioConfig, policy engine.Policy) (*service.Session, error) {
	if id == "" {
		id = fmt.Sprintf("t%03d", len(m.sessions)+1)
	}
	if _, exists := m.sessions[id]; exists {
		return nil, errors.New("session already exists")
	}

	eng, err := engine.NewEngineWithPolicy(config, policy)
	if err != nil {
		return nil, err
	}

	session := &service.Session{
		ID:             id,
		Engine:         eng,
		Config:         config,
		CreatedAt:      time.Now(),
		LastAccessedAt: time.Now(),
	}
	m.sessions[id] = session
	return session, nil
}

func (m *MockSessionManager) Get(id string) (*service.Session, error) {
	session, exists := m.sessions[id]
	if !exists {
		return nil, errors.New("session not found")
	}
	return session, nil
}

func (m *MockSessionManager) List() []*service.Session {
	result := make([]*service.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	return result
}

func (m *MockSessionManager) Delete(id string) error {
	if _, exists := m.sessions[id]; !exists {
		return errors.New("session not found")
	}
	delete(m.sessions, id)
	return nil
}

func (m *MockSessionManager) UpdateLastAccessed(id string) error {
	if session, exists := m.sessions[id]; exists {
		session.LastAccessedAt = time.Now()
		return nil
	}
	return errors.New("session not found")
}

// MockConfigManager implements service.ConfigManager for testing
type MockConfigManager struct {
	configs map[string]*engine.ScenarioConfig
}

func NewMockConfigManager() *MockConfigManager {
	return &MockConfigManager{
		configs: map[string]*engine.ScenarioConfig{
			"example": engine.DefaultScenarioConfig(),
			"single": {
				Name:   "Single Rock",
				Policy: engine.FloorSaturation,
				Paths:  []string{"500,1 -> 500,1"},
			},
		},
	}
}

func (m *MockConfigManager) LoadConfig(name string) (*engine.ScenarioConfig, error) {
	if config, ok := m.configs[name]; ok {
		return config, nil
	}
	return nil, fmt.Errorf("scenario %s: %w", name, service.ErrConfigNotFound)
}

func (m *MockConfigManager) ListConfigs() ([]*service.ScenarioInfo, error) {
	var infos []*service.ScenarioInfo
	for id, config := range m.configs {
		infos = append(infos, &service.ScenarioInfo{
			ScenarioID: id,
			Name:       config.Name,
			Filename:   id + ".json",
		})
	}
	return infos, nil
}

func (m *MockConfigManager) GetDefault() *engine.ScenarioConfig {
	return m.configs["example"]
}

func (m *MockConfigManager) SaveConfig(name string, config *engine.ScenarioConfig) error {
	if err := engine.ValidateScenarioConfig(config); err != nil {
		return err
	}
	m.configs[name] = config
	return nil
}

// MockResultStore implements service.ResultStore for testing
type MockResultStore struct {
	mu      sync.Mutex
	records []*service.RunRecord
	saveErr error
}

func (m *MockResultStore) Save(record *service.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records = append(m.records, record)
	return nil
}

func (m *MockResultStore) Load(id string) (*service.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, errors.New("result not found")
}

func (m *MockResultStore) List(query service.ResultQuery) ([]*service.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*service.RunRecord
	for i := len(m.records) - 1; i >= 0; i-- {
		if query.Matches(m.records[i]) {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

func (m *MockResultStore) Delete(id string) error { return nil }

func (m *MockResultStore) Exists(id string) bool {
	_, err := m.Load(id)
	return err == nil
}

func newTestService() (service.SimulationService, *MockResultStore) {
	store := &MockResultStore{}
	return service.NewSimulationService(NewMockSessionManager(), NewMockConfigManager(), store), store
}

func TestCreateSession(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	t.Run("default scenario", func(t *testing.T) {
		info, err := svc.CreateSession(ctx, "", "")
		if err != nil {
			t.Fatalf("CreateSession() error = %v", err)
		}
		if info.ScenarioID != "example" {
			t.Errorf("Expected scenario id 'example', got %q", info.ScenarioID)
		}
		if info.Policy != engine.VoidOverflow {
			t.Errorf("Expected policy %s, got %s", engine.VoidOverflow, info.Policy)
		}
		if info.SimState == nil || info.SimState.Status != engine.StatusIdle {
			t.Error("Expected idle sim state")
		}
	})

	t.Run("policy override", func(t *testing.T) {
		info, err := svc.CreateSession(ctx, "example", "floor")
		if err != nil {
			t.Fatalf("CreateSession() error = %v", err)
		}
		if info.Policy != engine.FloorSaturation {
			t.Errorf("Expected policy %s, got %s", engine.FloorSaturation, info.Policy)
		}
	})

	t.Run("scenario policy", func(t *testing.T) {
		info, err := svc.CreateSession(ctx, "single", "")
		if err != nil {
			t.Fatalf("CreateSession() error = %v", err)
		}
		if info.Policy != engine.FloorSaturation {
			t.Errorf("Expected scenario policy %s, got %s", engine.FloorSaturation, info.Policy)
		}
	})

	t.Run("unknown scenario lists alternatives", func(t *testing.T) {
		_, err := svc.CreateSession(ctx, "missing", "")
		if err == nil {
			t.Fatal("Expected error for unknown scenario")
		}
		if !strings.Contains(err.Error(), "Available scenarios") {
			t.Errorf("Expected available scenarios in error, got %v", err)
		}
		if !errors.Is(err, service.ErrConfigNotFound) {
			t.Errorf("Expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("invalid policy", func(t *testing.T) {
		_, err := svc.CreateSession(ctx, "example", "sideways")
		if !errors.Is(err, engine.ErrInvalidPolicy) {
			t.Errorf("Expected ErrInvalidPolicy, got %v", err)
		}
	})
}

func TestDropAndRecord(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	info, err := svc.CreateSession(ctx, "example", "")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	result, err := svc.Drop(ctx, info.ID, 10, false)
	if err != nil {
		t.Fatalf("Drop() error = %v", err)
	}
	if result.Dropped != 10 || result.SettledAfter != 10 || result.Halted {
		t.Errorf("Unexpected drop result: dropped=%d settled=%d halted=%v", result.Dropped, result.SettledAfter, result.Halted)
	}
	if result.Result != nil {
		t.Error("Expected no result record before halt")
	}

	result, err = svc.Drop(ctx, info.ID, 100, false)
	if err != nil {
		t.Fatalf("Drop() error = %v", err)
	}
	if !result.Halted || result.Status != engine.StatusHaltedVoid {
		t.Errorf("Expected halted_void, got %s", result.Status)
	}
	if result.SettledBefore != 10 || result.SettledAfter != 24 {
		t.Errorf("Expected settled 10 -> 24, got %d -> %d", result.SettledBefore, result.SettledAfter)
	}
	if result.Dropped != 15 || result.StoppedOnGrain != 25 {
		t.Errorf("Expected 15 dropped and stop on grain 25, got %d and %d", result.Dropped, result.StoppedOnGrain)
	}
	if result.StopReasonCode != "halted_void" {
		t.Errorf("Expected stop reason halted_void, got %q", result.StopReasonCode)
	}
	if result.Result == nil || result.Result.Settled != 24 || result.Result.SessionID != info.ID {
		t.Errorf("Expected recorded result with 24 settled, got %+v", result.Result)
	}
	if len(store.records) != 1 {
		t.Errorf("Expected 1 stored record, got %d", len(store.records))
	}

	_, err = svc.Drop(ctx, info.ID, 1, false)
	if !errors.Is(err, service.ErrRunHalted) {
		t.Errorf("Expected ErrRunHalted, got %v", err)
	}

	result, err = svc.Drop(ctx, info.ID, 1, true)
	if err != nil {
		t.Fatalf("Drop() with reset error = %v", err)
	}
	if result.SettledAfter != 1 {
		t.Errorf("Expected 1 settled after reset and drop, got %d", result.SettledAfter)
	}
	if len(result.Events) == 0 || result.Events[0].Type != "reset" {
		t.Error("Expected reset event first")
	}
}

func TestDropTruncated(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	info, err := svc.CreateSession(ctx, "example", "floor_saturation")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	result, err := svc.Drop(ctx, info.ID, engine.MaxBulkDrops+5, false)
	if err != nil {
		t.Fatalf("Drop() error = %v", err)
	}
	if !result.Truncated || result.Limit != engine.MaxBulkDrops {
		t.Errorf("Expected truncation at %d, got truncated=%v limit=%d", engine.MaxBulkDrops, result.Truncated, result.Limit)
	}
	if result.SettledAfter != 93 {
		t.Errorf("Expected 93 settled, got %d", result.SettledAfter)
	}
	if len(result.Grains) != 93 {
		t.Errorf("Expected 93 reported grains, got %d", len(result.Grains))
	}
	if result.Grains[len(result.Grains)-1].Number != 93 {
		t.Errorf("Expected the most recent grains to be reported")
	}
}

func TestRunToCompletion(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	info, err := svc.CreateSession(ctx, "example", "floor_saturation")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if _, err := svc.Drop(ctx, info.ID, 3, false); err != nil {
		t.Fatalf("Drop() error = %v", err)
	}

	result, err := svc.RunToCompletion(ctx, info.ID, false)
	if err != nil {
		t.Fatalf("RunToCompletion() error = %v", err)
	}
	if result.SettledAfter != 93 || result.Status != engine.StatusHaltedSaturated {
		t.Errorf("Expected 93 halted_saturated, got %d %s", result.SettledAfter, result.Status)
	}
	if result.Dropped != 90 {
		t.Errorf("Expected 90 grains in this call, got %d", result.Dropped)
	}
	if result.Result == nil || result.Result.FinalGrain != engine.DefaultSource {
		t.Errorf("Expected final grain at the source, got %+v", result.Result)
	}

	again, err := svc.RunToCompletion(ctx, info.ID, true)
	if err != nil {
		t.Fatalf("RunToCompletion() with reset error = %v", err)
	}
	if again.SettledAfter != 93 || again.Result == nil {
		t.Error("Expected a second recorded run after reset")
	}
	if len(store.records) != 2 {
		t.Errorf("Expected 2 stored records, got %d", len(store.records))
	}
}

func TestRunToCompletionCancelled(t *testing.T) {
	svc, _ := newTestService()
	info, err := svc.CreateSession(context.Background(), "example", "")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.RunToCompletion(ctx, info.ID, false); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestRecordFailureDoesNotFailDrop(t *testing.T) {
	store := &MockResultStore{saveErr: errors.New("disk full")}
	svc := service.NewSimulationService(NewMockSessionManager(), NewMockConfigManager(), store)
	ctx := context.Background()

	info, _ := svc.CreateSession(ctx, "example", "")
	result, err := svc.RunToCompletion(ctx, info.ID, false)
	if err != nil {
		t.Fatalf("RunToCompletion() error = %v", err)
	}
	if result.Result != nil {
		t.Error("Expected no result when the store fails")
	}
}

func TestNilResultStore(t *testing.T) {
	svc := service.NewSimulationService(NewMockSessionManager(), NewMockConfigManager(), nil)
	ctx := context.Background()

	info, _ := svc.CreateSession(ctx, "example", "")
	if _, err := svc.RunToCompletion(ctx, info.ID, false); err != nil {
		t.Fatalf("RunToCompletion() error = %v", err)
	}
	records, err := svc.ListResults(ctx, service.ResultQuery{})
	if err != nil {
		t.Fatalf("ListResults() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no records, got %d", len(records))
	}
}

func TestGetGrainHistory(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	info, _ := svc.CreateSession(ctx, "example", "")
	if _, err := svc.Drop(ctx, info.ID, 24, false); err != nil {
		t.Fatalf("Drop() error = %v", err)
	}

	tests := []struct {
		name      string
		opts      service.HistoryOptions
		wantFirst int
		wantCount int
		wantPages int
		wantNext  bool
		wantPrev  bool
		wantLimit int
	}{
		{"defaults desc", service.HistoryOptions{}, 24, 20, 2, true, false, 20},
		{"second page desc", service.HistoryOptions{Page: 2}, 4, 4, 2, false, true, 20},
		{"asc", service.HistoryOptions{Order: "asc", Limit: 5}, 1, 5, 5, true, false, 5},
		{"limit capped", service.HistoryOptions{Limit: 1000, Order: "asc"}, 1, 24, 1, false, false, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.GetGrainHistory(ctx, info.ID, tt.opts)
			if err != nil {
				t.Fatalf("GetGrainHistory() error = %v", err)
			}
			if len(resp.Grains) != tt.wantCount {
				t.Fatalf("Expected %d grains, got %d", tt.wantCount, len(resp.Grains))
			}
			if resp.Grains[0].Number != tt.wantFirst {
				t.Errorf("Expected first grain %d, got %d", tt.wantFirst, resp.Grains[0].Number)
			}
			if resp.TotalGrains != 24 || resp.TotalPages != tt.wantPages {
				t.Errorf("Expected 24 grains in %d pages, got %d in %d", tt.wantPages, resp.TotalGrains, resp.TotalPages)
			}
			if resp.HasNext != tt.wantNext || resp.HasPrevious != tt.wantPrev {
				t.Errorf("Unexpected paging flags next=%v prev=%v", resp.HasNext, resp.HasPrevious)
			}
			if resp.PageSize != tt.wantLimit {
				t.Errorf("Expected page size %d, got %d", tt.wantLimit, resp.PageSize)
			}
		})
	}

	if _, err := svc.GetGrainHistory(ctx, "nope", service.HistoryOptions{}); err == nil {
		t.Error("Expected error for unknown session")
	}
}

func TestRender(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	info, _ := svc.CreateSession(ctx, "single", "")
	if _, err := svc.RunToCompletion(ctx, info.ID, false); err != nil {
		t.Fatalf("RunToCompletion() error = %v", err)
	}
	render, err := svc.Render(ctx, info.ID)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	want := []string{"..o..", ".o#o.", "ooooo", "#####"}
	if strings.Join(render.Rows, "\n") != strings.Join(want, "\n") {
		t.Errorf("Unexpected render:\n%s", strings.Join(render.Rows, "\n"))
	}
	if render.Legend["#"] != "rock" {
		t.Error("Expected legend for rock")
	}
	if render.Bounds.Width() != 5 {
		t.Errorf("Expected width 5, got %d", render.Bounds.Width())
	}
}

func TestSolve(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	t.Run("both policies", func(t *testing.T) {
		result, err := svc.Solve(ctx, service.SolveRequest{Scenario: "example"})
		if err != nil {
			t.Fatalf("Solve() error = %v", err)
		}
		if len(result.Results) != 2 {
			t.Fatalf("Expected 2 policy results, got %d", len(result.Results))
		}
		void, floor := result.Results[0], result.Results[1]
		if void.Policy != engine.VoidOverflow || void.Settled != 24 || void.Dropped != 25 {
			t.Errorf("Unexpected void result: %+v", void)
		}
		if floor.Policy != engine.FloorSaturation || floor.Settled != 93 || floor.Dropped != 93 {
			t.Errorf("Unexpected floor result: %+v", floor)
		}
		if floor.FinalGrain != engine.DefaultSource {
			t.Errorf("Expected final floor grain at source, got %v", floor.FinalGrain)
		}
		if result.FloorLevel != 9 || result.RockCount != 20 {
			t.Errorf("Expected floor 9 and 20 rocks, got %d and %d", result.FloorLevel, result.RockCount)
		}
		if void.RecordID == "" || floor.RecordID == "" {
			t.Error("Expected solves to be recorded")
		}
	})

	t.Run("inline paths single policy", func(t *testing.T) {
		result, err := svc.Solve(ctx, service.SolveRequest{
			Paths:  []string{"500,1 -> 500,1"},
			Policy: "floor_saturation",
		})
		if err != nil {
			t.Fatalf("Solve() error = %v", err)
		}
		if result.ScenarioID != service.InlineScenarioID {
			t.Errorf("Expected inline scenario id, got %q", result.ScenarioID)
		}
		if len(result.Results) != 1 || result.Results[0].Settled != 8 {
			t.Errorf("Expected a single result of 8, got %+v", result.Results)
		}
	})

	t.Run("malformed inline paths", func(t *testing.T) {
		_, err := svc.Solve(ctx, service.SolveRequest{Paths: []string{"500,1"}})
		if !errors.Is(err, engine.ErrMalformedInput) {
			t.Errorf("Expected ErrMalformedInput, got %v", err)
		}
	})

	t.Run("source override below floor", func(t *testing.T) {
		_, err := svc.Solve(ctx, service.SolveRequest{Scenario: "example", Source: &engine.Position{X: 500, Y: 20}})
		if !errors.Is(err, engine.ErrMalformedInput) {
			t.Errorf("Expected ErrMalformedInput, got %v", err)
		}
	})

	records, err := svc.ListResults(ctx, service.ResultQuery{ScenarioID: "example"})
	if err != nil {
		t.Fatalf("ListResults() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("Expected 2 example records, got %d (store has %d)", len(records), len(store.records))
	}
}

func TestSessionLifecycle(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	info, _ := svc.CreateSession(ctx, "example", "")
	if _, err := svc.GetSession(ctx, info.ID); err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	sessions, _ := svc.ListSessions(ctx)
	if len(sessions) != 1 {
		t.Errorf("Expected 1 session, got %d", len(sessions))
	}

	if _, err := svc.Drop(ctx, info.ID, 5, false); err != nil {
		t.Fatalf("Drop() error = %v", err)
	}
	state, err := svc.Reset(ctx, info.ID)
	if err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if state.Settled != 0 || state.Status != engine.StatusIdle {
		t.Error("Expected fresh state after reset")
	}
	state, _ = svc.GetSimState(ctx, info.ID)
	if state.Dropped != 0 {
		t.Errorf("Expected 0 dropped after reset, got %d", state.Dropped)
	}

	if err := svc.DeleteSession(ctx, info.ID); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if _, err := svc.GetSession(ctx, info.ID); err == nil {
		t.Error("Expected error after delete")
	}
}

func TestScenarios(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	scenarios, err := svc.ListScenarios(ctx)
	if err != nil {
		t.Fatalf("ListScenarios() error = %v", err)
	}
	if len(scenarios) != 2 {
		t.Errorf("Expected 2 scenarios, got %d", len(scenarios))
	}

	if err := svc.SaveScenario(ctx, "", engine.DefaultScenarioConfig()); err == nil {
		t.Error("Expected error for empty scenario id")
	}
	custom := &engine.ScenarioConfig{Name: "Custom", Paths: []string{"490,5 -> 510,5"}}
	if err := svc.SaveScenario(ctx, "custom", custom); err != nil {
		t.Fatalf("SaveScenario() error = %v", err)
	}
	loaded, err := svc.LoadScenario(ctx, "custom")
	if err != nil || loaded.Name != "Custom" {
		t.Errorf("Expected saved scenario to load, got %v %v", loaded, err)
	}
}

func TestConcurrentSessionAccess(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	info, err := svc.CreateSession(ctx, "example", "floor_saturation")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				state, err := svc.GetSimState(ctx, info.ID)
				if err != nil {
					t.Errorf("GetSimState() error = %v", err)
					return
				}
				if _, err := json.Marshal(state); err != nil {
					t.Errorf("Failed to encode state: %v", err)
					return
				}
				sess, err := svc.GetSession(ctx, info.ID)
				if err != nil {
					t.Errorf("GetSession() error = %v", err)
					return
				}
				if _, err := json.Marshal(sess); err != nil {
					t.Errorf("Failed to encode session: %v", err)
					return
				}
			}
		}()
	}

	var last *service.DropResult
	for round := 0; round < 20 && !t.Failed(); round++ {
		if _, err := svc.Reset(ctx, info.ID); err != nil {
			t.Errorf("Reset() error = %v", err)
			break
		}
		for {
			result, err := svc.Drop(ctx, info.ID, 7, false)
			if err != nil {
				t.Errorf("Drop() error = %v", err)
				break
			}
			if _, err := json.Marshal(result); err != nil {
				t.Errorf("Failed to encode drop result: %v", err)
			}
			if result.Halted {
				last = result
				break
			}
		}
	}
	close(done)
	wg.Wait()

	if last == nil {
		t.Fatal("Expected the run to halt")
	}
	if last.SettledAfter != 93 {
		t.Errorf("Expected 93 settled, got %d", last.SettledAfter)
	}

	// Results hold a snapshot, so a later reset does not change them
	if _, err := svc.Reset(ctx, info.ID); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if last.SimState.Settled != 93 || last.SimState.Status != engine.StatusHaltedSaturated {
		t.Errorf("Expected returned state to stay at 93 halted_saturated, got %d %s",
			last.SimState.Settled, last.SimState.Status)
	}
	if got := last.SimState.Occupancy.Count(); got != 20+93 {
		t.Errorf("Expected returned occupancy of %d cells, got %d", 20+93, got)
	}
}
