// Package websocket provides WebSocket transport for Sandfall.
//
// The websocket package implements:
//   - Session-aware WebSocket connections
//   - State broadcasting after every drop, run and reset
//   - Connection lifecycle management
//
// Architecture:
//
// A central Hub tracks the clients watching each session. Every client has
// a read goroutine that keeps the connection alive and a write goroutine
// that drains its send queue. Clients whose queue is full are dropped.
//
// Message Protocol:
//
// Outgoing messages are JSON objects:
//
//	{"session_id": "ab12", "event": "state_update", "sim_state": {...}}
//	{"session_id": "ab12", "event": "halted", "data": {...}}
//
// Incoming messages are read and discarded.
//
// Usage:
//
//	hub := websocket.NewHub()
//	go hub.Run()
//
//	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
//		hub.ServeWS(w, r, r.URL.Query().Get("session"))
//	})
package websocket
