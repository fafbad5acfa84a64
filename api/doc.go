// Package api provides HTTP REST API handlers for Sandfall.
//
// The api package implements:
//   - Session management endpoints
//   - Grain drops, run-to-completion and reset
//   - Grain history with pagination and text rendering
//   - Scenario listing, retrieval and creation
//   - One-shot solves and the result ledger
//   - WebSocket upgrade handling
//
// Endpoints:
//
// Session Management:
//   - POST /api/sessions - Create a session {"scenario_id", "policy"}
//   - GET /api/sessions - List sessions (?sort=created|accessed&order=asc|desc&limit=N)
//   - GET /api/sessions/{id} - Get a session
//   - DELETE /api/sessions/{id} - Delete a session
//
// Simulation:
//   - GET /api/sessions/{id}/state - Current simulation state
//   - POST /api/sessions/{id}/drop - Drop grains {"count": N, "reset": bool}
//   - POST /api/sessions/{id}/run - Drop until the run halts {"reset": bool}
//   - POST /api/sessions/{id}/reset - Restore the seeded rock
//   - GET /api/sessions/{id}/history - Grain history (?page=&limit=&order=)
//   - GET /api/sessions/{id}/render - Cave drawing (?format=text for plain rows)
//
// Scenarios and results:
//   - GET /api/scenarios - List scenarios
//   - POST /api/scenarios - Save a scenario {"id", "name", "paths", ...}
//   - GET /api/scenarios/{name} - Get a scenario
//   - POST /api/solve - Solve paths or a scenario without a session
//   - GET /api/results - Recorded runs (?scenario=&policy=&limit=)
//   - GET /api/health - Health check
//
// WebSocket:
//   - GET /ws?session={id} - Live state updates for a session
//
// Error Handling:
//
// Errors are returned as JSON with an HTTP status code:
//
//	{"error": "session not found: session not found"}
//
// Missing sessions, scenarios and results map to 404, malformed input and
// unknown policies to 400, drops into a halted run to 409, everything else
// to 500.
package api
