package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/wricardo/sandfall/sim/service"
)

// FileStore implements service.ResultStore with one JSON file per record
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore creates a file-based result store rooted at dir
func NewFileStore(dir string) (*FileStore, error) {
	// Create results directory if it doesn't exist
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes a record to <id>.json
func (fs *FileStore) Save(record *service.RunRecord) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if !validRecordID(record.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidRecordID, record.ID)
	}

	jsonData, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result record: %w", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := os.WriteFile(fs.getFilePath(record.ID), jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write result file: %w", err)
	}
	return nil
}

// Load reads a record by ID
func (fs *FileStore) Load(id string) (*service.RunRecord, error) {
	if !validRecordID(id) {
		return nil, ErrResultNotFound
	}

	fs.mu.RLock()
	jsonData, err := os.ReadFile(fs.getFilePath(id))
	fs.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("failed to read result file: %w", err)
	}

	var record service.RunRecord
	if err := json.Unmarshal(jsonData, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result record: %w", err)
	}
	return &record, nil
}

// List returns matching records, newest first
func (fs *FileStore) List(query service.ResultQuery) ([]*service.RunRecord, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read results directory: %w", err)
	}

	records := []*service.RunRecord{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		record, err := fs.Load(strings.TrimSuffix(name, ".json"))
		if err != nil {
			// Skip unreadable records
			continue
		}
		if query.Matches(record) {
			records = append(records, record)
		}
	}

	sortRecords(records)
	return limitRecords(records, query.Limit), nil
}

// Delete removes a record file
func (fs *FileStore) Delete(id string) error {
	if !fs.Exists(id) {
		return ErrResultNotFound
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := os.Remove(fs.getFilePath(id)); err != nil {
		return fmt.Errorf("failed to remove result file: %w", err)
	}
	return nil
}

// Exists checks if a record file exists
func (fs *FileStore) Exists(id string) bool {
	if !validRecordID(id) {
		return false
	}
	_, err := os.Stat(fs.getFilePath(id))
	return err == nil
}

// Close is a no-op for the file store
func (fs *FileStore) Close() error {
	return nil
}

func (fs *FileStore) getFilePath(id string) string {
	return filepath.Join(fs.dir, fmt.Sprintf("%s.json", id))
}

func sortRecords(records []*service.RunRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].RecordedAt.Equal(records[j].RecordedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].RecordedAt.After(records[j].RecordedAt)
	})
}

func limitRecords(records []*service.RunRecord, limit int) []*service.RunRecord {
	if limit > 0 && len(records) > limit {
		return records[:limit]
	}
	return records
}
