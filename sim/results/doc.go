// Package results stores the records of finished simulation runs.
//
// Two backends implement service.ResultStore:
//   - FileStore writes one indented JSON file per record
//   - SQLiteStore keeps every record in a single SQLite table
//
// NewStore picks a backend by name ("file", "sqlite" or "none"). Records are
// always listed newest first and may be filtered by scenario and policy.
package results
