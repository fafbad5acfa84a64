// Package service provides the business logic layer for Sandfall.
//
// The service package implements:
//   - Multi-session simulation management
//   - Scenario listing, loading and saving
//   - Bulk grain drops and run-to-completion
//   - Paginated grain history and text rendering
//   - One-shot solves and the result ledger
//
// Core Interfaces:
//
// SimulationService is the main service interface used by every transport.
// SessionManager handles session creation, retrieval, and lifecycle.
// ConfigManager loads and validates scenarios. ResultStore persists the
// records of finished runs.
//
// Architecture:
//
// The service layer sits between the transport layer (HTTP/WebSocket/MCP) and
// the simulation engine. Each session owns an independent engine; the service
// serialises operations on sessions with a single lock. When a run halts the
// service appends a RunRecord to the result store, once per halt.
//
// Usage:
//
//	sessionMgr := session.NewManager()
//	configMgr, _ := config.NewManager("configs")
//	store, _ := results.NewFileStore("results")
//	svc := service.NewSimulationService(sessionMgr, configMgr, store)
//
//	info, err := svc.CreateSession(ctx, "example", "floor_saturation")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	result, err := svc.RunToCompletion(ctx, info.ID, false)
package service
