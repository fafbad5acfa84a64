// Package session provides session management for Sandfall.
//
// The session package implements:
//   - Thread-safe session storage and retrieval
//   - Unique session ID generation
//   - Session cleanup and expiration
//
// Core Types:
//
// Manager is the session manager that handles all session operations.
// Each session owns its own simulation engine, so runs in different
// sessions never share occupancy.
//
// Session Identifiers:
//
// Sessions use 4-character hex IDs for easy reference. Lookups are
// case-insensitive and generated IDs are checked for collisions.
//
// Sessions are held in memory only. A server restart discards every run in
// progress; finished runs survive in the result store instead.
//
// Usage:
//
//	manager := session.NewManager()
//
//	sess, err := manager.Create("", scenario, engine.FloorSaturation)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	sess, err = manager.Get(sess.ID)
package session
