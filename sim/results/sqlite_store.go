package results

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/wricardo/sandfall/sim/engine"
	"github.com/wricardo/sandfall/sim/service"
)

const resultsSchema = `
CREATE TABLE IF NOT EXISTS results (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL DEFAULT '',
	scenario_id TEXT NOT NULL,
	policy      TEXT NOT NULL,
	status      TEXT NOT NULL,
	settled     INTEGER NOT NULL,
	dropped     INTEGER NOT NULL,
	floor_level INTEGER NOT NULL,
	source_x    INTEGER NOT NULL,
	source_y    INTEGER NOT NULL,
	final_x     INTEGER NOT NULL,
	final_y     INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_scenario ON results(scenario_id, policy);
`

// recordedAtLayout keeps a fixed width so recorded_at sorts lexically
const recordedAtLayout = "2006-01-02T15:04:05.000000000Z"

const selectColumns = `id, session_id, scenario_id, policy, status, settled, dropped,
	floor_level, source_x, source_y, final_x, final_y, duration_ms, recorded_at`

// SQLiteStore implements service.ResultStore on a SQLite database
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens or creates the database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), resultsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Save inserts or replaces a record
func (s *SQLiteStore) Save(record *service.RunRecord) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if !validRecordID(record.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidRecordID, record.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(context.Background(), `
		INSERT OR REPLACE INTO results (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.SessionID, record.ScenarioID, string(record.Policy), string(record.Status),
		record.Settled, record.Dropped, record.FloorLevel,
		record.Source.X, record.Source.Y, record.FinalGrain.X, record.FinalGrain.Y,
		record.DurationMs, record.RecordedAt.UTC().Format(recordedAtLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}
	return nil
}

// Load reads a record by ID
func (s *SQLiteStore) Load(id string) (*service.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(context.Background(),
		`SELECT `+selectColumns+` FROM results WHERE id = ?`, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load result: %w", err)
	}
	return record, nil
}

// List returns matching records, newest first
func (s *SQLiteStore) List(query service.ResultQuery) ([]*service.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var conditions []string
	var args []interface{}
	if query.ScenarioID != "" {
		conditions = append(conditions, "scenario_id = ?")
		args = append(args, query.ScenarioID)
	}
	if query.Policy != "" {
		conditions = append(conditions, "policy = ?")
		args = append(args, string(query.Policy))
	}

	sqlQuery := `SELECT ` + selectColumns + ` FROM results`
	if len(conditions) > 0 {
		sqlQuery += " WHERE " + strings.Join(conditions, " AND ")
	}
	sqlQuery += " ORDER BY recorded_at DESC, id ASC"
	if query.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, query.Limit)
	}

	rows, err := s.db.QueryContext(context.Background(), sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	records := []*service.RunRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate results: %w", err)
	}
	return records, nil
}

// Delete removes a record
func (s *SQLiteStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(context.Background(), `DELETE FROM results WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete result: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete result: %w", err)
	}
	if n == 0 {
		return ErrResultNotFound
	}
	return nil
}

// Exists checks if a record is stored
func (s *SQLiteStore) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var exists int
	err := s.db.QueryRowContext(context.Background(), `SELECT 1 FROM results WHERE id = ?`, id).Scan(&exists)
	return err == nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*service.RunRecord, error) {
	var (
		record             service.RunRecord
		policy, status, at string
	)
	err := row.Scan(&record.ID, &record.SessionID, &record.ScenarioID, &policy, &status,
		&record.Settled, &record.Dropped, &record.FloorLevel,
		&record.Source.X, &record.Source.Y, &record.FinalGrain.X, &record.FinalGrain.Y,
		&record.DurationMs, &at)
	if err != nil {
		return nil, err
	}
	record.Policy = engine.Policy(policy)
	record.Status = engine.RunStatus(status)
	if record.RecordedAt, err = time.Parse(recordedAtLayout, at); err != nil {
		return nil, fmt.Errorf("bad recorded_at %q: %w", at, err)
	}
	return &record, nil
}
