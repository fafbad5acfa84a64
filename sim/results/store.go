package results

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/wricardo/sandfall/sim/service"
)

var (
	ErrResultNotFound  = errors.New("result not found")
	ErrInvalidRecordID = errors.New("invalid record ID")
	ErrUnknownBackend  = errors.New("unknown results backend")
)

// Backend names accepted by NewStore
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendNone   = "none"
)

// DatabaseFile is the SQLite file created inside the results directory
const DatabaseFile = "results.db"

// Store is a result ledger that holds resources until closed
type Store interface {
	service.ResultStore
	Close() error
}

// NewStore opens the named backend under dir. The none backend returns a
// nil store, which the service treats as recording disabled.
func NewStore(backend, dir string) (Store, error) {
	switch strings.ToLower(backend) {
	case "", BackendFile:
		store, err := NewFileStore(dir)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendSQLite:
		store, err := NewSQLiteStore(filepath.Join(dir, DatabaseFile))
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, backend)
	}
}

func validRecordID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\.`)
}
