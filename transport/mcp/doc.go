// Package mcp provides the Model Context Protocol interface for Sandfall.
//
// The Client is a thin proxy: every tool call is translated into a request
// against the REST API and the JSON response is formatted as text for the
// agent. The package holds no simulation state of its own.
//
// MCP Tools:
//   - create_session, list_sessions, get_session: Session management
//   - sim_state: Current counts and status of a run
//   - drop_grains: Drop one or more grains, optionally after a reset
//   - run_to_completion: Drop until the run halts
//   - reset_sim: Restore the seeded rock
//   - grain_history: Resting positions with pagination
//   - render_cave: Text drawing of the cave
//   - list_scenarios: Available scenarios
//   - solve: One-shot run of a scenario or raw paths
//   - list_results: Recorded runs
//   - sandfall_instructions: Full rules
//
// Transport Modes:
//
// The same MCP server is served over stdio for local clients and over the
// HTTP /mcp endpoint mounted by the server binary.
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
package mcp
