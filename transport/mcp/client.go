package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wricardo/sandfall/sim/engine"
	"github.com/wricardo/sandfall/sim/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Sandfall",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Sandfall - MCP Interface

This is a thin client that proxies all requests to the REST API server.

Sand enters a cave of rock one grain at a time from the source (default 500,0).
Each grain falls down, then down-left, then down-right, and rests when all
three are blocked. Two halting policies exist:
- void_overflow: no floor; the run halts when a grain falls past the lowest rock
- floor_saturation: an endless floor two rows below the lowest rock; the run
  halts when a grain comes to rest on the source

AVAILABLE TOOLS:
- create_session: Start a simulation from a scenario, optionally choosing the policy
- list_sessions / get_session: Inspect sessions
- sim_state: Current counts and status of a session
- drop_grains: Drop one or more grains
- run_to_completion: Drop until the run halts
- reset_sim: Restore the seeded rock
- grain_history: Where recent grains came to rest
- render_cave: Draw the cave as text
- list_scenarios: Available scenarios
- solve: Count settled grains for a scenario or raw paths without a session
- list_results: Previously recorded runs
- sandfall_instructions: Full rules and tips`),
	)

	c.registerTools()
}

func sessionIDProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Session ID",
	}
}

func policyProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"enum":        []string{string(engine.VoidOverflow), string(engine.FloorSaturation)},
		"description": description,
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Session management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new simulation session with optional scenario and policy",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"scenario_id": map[string]interface{}{
					"type":        "string",
					"description": "ID of the scenario to use (optional, defaults to the example cave)",
				},
				"policy": policyProperty("Halting policy (optional, defaults to the scenario's policy)"),
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all active simulation sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get details of a specific session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
			},
			Required: []string{"session_id"},
		},
	}, c.handleGetSession)

	// Simulation operations
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "sim_state",
		Description: "Get the current simulation state",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
			},
			Required: []string{"session_id"},
		},
	}, c.handleSimState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "drop_grains",
		Description: "Drop grains of sand from the source. Stops early when the run halts.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
				"count": map[string]interface{}{
					"type":        "integer",
					"minimum":     1,
					"maximum":     engine.MaxBulkDrops,
					"description": "Number of grains to drop (default 1)",
				},
				"reset": map[string]interface{}{
					"type":        "boolean",
					"description": "Reset before dropping",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleDropGrains)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "run_to_completion",
		Description: "Drop grains until the run halts and report the settled count",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
				"reset": map[string]interface{}{
					"type":        "boolean",
					"description": "Reset before running",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleRunToCompletion)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "reset_sim",
		Description: "Reset the simulation to its seeded rock",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
			},
			Required: []string{"session_id"},
		},
	}, c.handleReset)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "grain_history",
		Description: "Get the resting position of past grains with pagination",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
				"page": map[string]interface{}{
					"type":        "integer",
					"description": "Page number (default 1)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Entries per page (default 20, max 100)",
				},
				"order": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"asc", "desc"},
					"description": "Sort order (default desc)",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleGrainHistory)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "render_cave",
		Description: "Draw the cave: # rock, o sand, + source, . air",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
			},
			Required: []string{"session_id"},
		},
	}, c.handleRenderCave)

	// Scenarios and results
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_scenarios",
		Description: "List available cave scenarios",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListScenarios)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "solve",
		Description: "Run a scenario or raw rock paths to completion without a session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"scenario": map[string]interface{}{
					"type":        "string",
					"description": "Scenario ID (ignored when paths are given)",
				},
				"paths": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": `Rock polylines such as "498,4 -> 498,6 -> 496,6"`,
				},
				"policy": policyProperty("Policy to solve (optional, both when omitted)"),
			},
		},
	}, c.handleSolve)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_results",
		Description: "List recorded runs, newest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"scenario": map[string]interface{}{
					"type":        "string",
					"description": "Filter by scenario ID",
				},
				"policy": policyProperty("Filter by policy"),
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum records (default 50)",
				},
			},
		},
	}, c.handleListResults)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "sandfall_instructions",
		Description: "Get the full simulation rules and usage tips",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleInstructions)
}

// GetMCPServer returns the underlying MCP server
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(method, path string, body interface{}, result interface{}) error {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

func intArg(args map[string]interface{}, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	scenarioID, _ := args["scenario_id"].(string)
	policy, _ := args["policy"].(string)

	body := map[string]string{}
	if scenarioID != "" {
		body["scenario_id"] = scenarioID
	}
	if policy != "" {
		body["policy"] = policy
	}

	var session service.SessionInfo
	if err := c.apiCall("POST", "/api/sessions", body, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&session)), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var resp struct {
		Sessions []*service.SessionInfo `json:"sessions"`
	}
	if err := c.apiCall("GET", "/api/sessions", nil, &resp); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(resp.Sessions) == 0 {
		return mcp.NewToolResultText("No active sessions"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active Sessions (%d):\n\n", len(resp.Sessions))
	for _, s := range resp.Sessions {
		settled, status := 0, engine.StatusIdle
		if s.SimState != nil {
			settled, status = s.SimState.Settled, s.SimState.Status
		}
		fmt.Fprintf(&b, "• %s  scenario=%s policy=%s settled=%d status=%s\n",
			s.ID, s.ScenarioID, s.Policy, settled, status)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var session service.SessionInfo
	if err := c.apiCall("GET", fmt.Sprintf("/api/sessions/%s", sessionID), nil, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&session)), nil
}

func (c *Client) handleSimState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var state engine.SimState
	if err := c.apiCall("GET", fmt.Sprintf("/api/sessions/%s/state", sessionID), nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSimState(&state)), nil
}

func (c *Client) handleDropGrains(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)
	reset, _ := args["reset"].(bool)
	count, ok := intArg(args, "count")
	if !ok {
		count = 1
	}

	body := map[string]interface{}{
		"count": count,
		"reset": reset,
	}

	var result service.DropResult
	if err := c.apiCall("POST", fmt.Sprintf("/api/sessions/%s/drop", sessionID), body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatDropResult(sessionID, &result)), nil
}

func (c *Client) handleRunToCompletion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)
	reset, _ := args["reset"].(bool)

	var result service.DropResult
	if err := c.apiCall("POST", fmt.Sprintf("/api/sessions/%s/run", sessionID), map[string]bool{"reset": reset}, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatDropResult(sessionID, &result)), nil
}

func (c *Client) handleReset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var resp struct {
		Message string           `json:"message"`
		State   *engine.SimState `json:"state"`
	}
	if err := c.apiCall("POST", fmt.Sprintf("/api/sessions/%s/reset", sessionID), nil, &resp); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := resp.Message + "\n\n"
	if resp.State != nil {
		result += formatSimState(resp.State)
	}
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleGrainHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)

	params := url.Values{}
	if page, ok := intArg(args, "page"); ok {
		params.Set("page", fmt.Sprint(page))
	}
	if limit, ok := intArg(args, "limit"); ok {
		params.Set("limit", fmt.Sprint(limit))
	}
	if order, ok := args["order"].(string); ok && order != "" {
		params.Set("order", order)
	}

	path := fmt.Sprintf("/api/sessions/%s/history", sessionID)
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var history service.HistoryResponse
	if err := c.apiCall("GET", path, nil, &history); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatHistory(&history)), nil
}

func (c *Client) handleRenderCave(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var rendered service.RenderResult
	if err := c.apiCall("GET", fmt.Sprintf("/api/sessions/%s/render", sessionID), nil, &rendered); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatRender(&rendered)), nil
}

func (c *Client) handleListScenarios(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var scenarios []service.ScenarioInfo
	if err := c.apiCall("GET", "/api/scenarios", nil, &scenarios); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := "Available Scenarios:\n\n"
	for _, sc := range scenarios {
		result += fmt.Sprintf("• %s (%s)\n  %s\n  Rock cells: %d, Floor level: %d, Source: %s, Policy: %s\n\n",
			sc.ScenarioID, sc.Name, sc.Description, sc.RockCount, sc.FloorLevel, sc.Source, sc.Policy)
	}

	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleSolve(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	req := service.SolveRequest{}
	req.Scenario, _ = args["scenario"].(string)
	req.Policy, _ = args["policy"].(string)
	if raw, ok := args["paths"].([]interface{}); ok {
		for _, p := range raw {
			if s, ok := p.(string); ok {
				req.Paths = append(req.Paths, s)
			}
		}
	}

	var result service.SolveResult
	if err := c.apiCall("POST", "/api/solve", req, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSolveResult(&result)), nil
}

func (c *Client) handleListResults(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	params := url.Values{}
	if scenario, ok := args["scenario"].(string); ok && scenario != "" {
		params.Set("scenario", scenario)
	}
	if policy, ok := args["policy"].(string); ok && policy != "" {
		params.Set("policy", policy)
	}
	if limit, ok := intArg(args, "limit"); ok {
		params.Set("limit", fmt.Sprint(limit))
	}

	path := "/api/results"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp struct {
		Results []*service.RunRecord `json:"results"`
	}
	if err := c.apiCall("GET", path, nil, &resp); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatResults(resp.Results)), nil
}

func (c *Client) handleInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instructions := `Sandfall - Complete Instructions

THE CAVE:
The cave is a 2D grid. x grows to the right, y grows downward. Rock is given
as polylines: "498,4 -> 498,6 -> 496,6" draws rock on every cell between
consecutive vertices, endpoints included. The lowest rock row is the floor level.

HOW A GRAIN FALLS:
1. Try straight down (x, y+1)
2. Otherwise down-left (x-1, y+1)
3. Otherwise down-right (x+1, y+1)
4. If all three are blocked the grain rests where it is
Only after a grain rests does the next one enter at the source.

POLICIES:
- void_overflow: there is no floor. The first grain to fall below the floor
  level falls forever; the run halts and that grain is not counted.
- floor_saturation: an endless floor lies at floor level + 2. Sand piles up
  until a grain rests on the source itself; that grain is counted.

RENDER LEGEND:
- # rock
- o sand
- + source
- . air

TIPS:
- drop_grains with a small count to watch the pile form, then render_cave
- run_to_completion answers "how many grains come to rest"
- solve compares both policies for a scenario without creating a session
- A halted session must be reset before it accepts more grains`

	return mcp.NewToolResultText(instructions), nil
}

// Formatting helpers

func formatSessionInfo(session *service.SessionInfo) string {
	result := fmt.Sprintf("Session: %s\nScenario: %s\nPolicy: %s\n", session.ID, session.ScenarioID, session.Policy)
	if session.SimState != nil {
		result += "\n" + formatSimState(session.SimState)
	}
	return result
}

func formatSimState(state *engine.SimState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scenario: %s\n", state.ScenarioName)
	fmt.Fprintf(&b, "Policy: %s\n", state.Policy)
	fmt.Fprintf(&b, "Source: %s\n", state.Source)
	fmt.Fprintf(&b, "Floor level: %d\n", state.FloorLevel)
	fmt.Fprintf(&b, "Settled: %d (dropped %d)\n", state.Settled, state.Dropped)
	fmt.Fprintf(&b, "Status: %s\n", statusLabel(state.Status))
	if state.LastGrain != nil {
		fmt.Fprintf(&b, "Last grain: #%d %s at %s after %d steps\n",
			state.LastGrain.Number, state.LastGrain.Outcome, state.LastGrain.Position, state.LastGrain.Steps)
	}
	if state.Message != "" {
		fmt.Fprintf(&b, "\n%s\n", state.Message)
	}
	return b.String()
}

func statusLabel(status engine.RunStatus) string {
	switch status {
	case engine.StatusHaltedVoid:
		return "HALTED (sand falls into the void)"
	case engine.StatusHaltedSaturated:
		return "HALTED (source is buried)"
	case engine.StatusDropping:
		return "dropping"
	}
	return "idle"
}

func formatDropResult(sessionID string, result *service.DropResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session %s: dropped %d", sessionID, result.Dropped)
	if result.Requested > 0 {
		fmt.Fprintf(&b, "/%d", result.Requested)
	}
	fmt.Fprintf(&b, " grains, settled %d -> %d\n", result.SettledBefore, result.SettledAfter)
	if result.Truncated {
		fmt.Fprintf(&b, "Request truncated to %d grains\n", result.Limit)
	}
	if result.Halted {
		fmt.Fprintf(&b, "Run halted on grain #%d: %s\n", result.StoppedOnGrain, result.StopReasonCode)
	}

	if n := len(result.Grains); n > 0 {
		shown := result.Grains
		if n > 10 {
			shown = shown[n-10:]
			fmt.Fprintf(&b, "\nLast 10 of %d grains:\n", result.Dropped)
		} else {
			b.WriteString("\nGrains:\n")
		}
		for _, g := range shown {
			fmt.Fprintf(&b, "  #%d %s at %s (%d steps)\n", g.Number, g.Outcome, g.Position, g.Steps)
		}
	}

	if result.Result != nil {
		fmt.Fprintf(&b, "\nRecorded as result %s\n", result.Result.ID)
	}
	if result.Message != "" {
		fmt.Fprintf(&b, "\n%s\n", result.Message)
	}
	return b.String()
}

func formatHistory(history *service.HistoryResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Grain History (Page %d/%d) - Total: %d\n\n",
		history.Page, history.TotalPages, history.TotalGrains)

	for _, g := range history.Grains {
		fmt.Fprintf(&b, "#%d %s at %s [steps: %d, settled: %d]\n",
			g.Number, g.Outcome, g.Position, g.Steps, g.Settled)
	}
	if history.HasNext {
		b.WriteString("\n(more on the next page)\n")
	}
	return b.String()
}

func formatRender(rendered *service.RenderResult) string {
	header := fmt.Sprintf("Cave x=%d..%d y=%d..%d\n\n",
		rendered.Bounds.Min.X, rendered.Bounds.Max.X, rendered.Bounds.Min.Y, rendered.Bounds.Max.Y)
	return header + strings.Join(rendered.Rows, "\n") + "\n\nLegend: # rock, o sand, + source, . air"
}

func formatSolveResult(result *service.SolveResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Solved %s (%s)\n", result.ScenarioID, result.ScenarioName)
	fmt.Fprintf(&b, "Rock cells: %d, Floor level: %d, Source: %s\n\n", result.RockCount, result.FloorLevel, result.Source)
	for _, pr := range result.Results {
		fmt.Fprintf(&b, "• %s: %d grains settled (%s, last grain at %s)\n",
			pr.Policy, pr.Settled, pr.Status, pr.FinalGrain)
	}
	return b.String()
}

func formatResults(records []*service.RunRecord) string {
	if len(records) == 0 {
		return "No recorded results"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Recorded Results (%d):\n\n", len(records))
	for _, r := range records {
		fmt.Fprintf(&b, "• %s %s %s: %d settled (%s) at %s\n",
			r.ID, r.ScenarioID, r.Policy, r.Settled, r.Status, r.RecordedAt.Format(time.RFC3339))
	}
	return b.String()
}
