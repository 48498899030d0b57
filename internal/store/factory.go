package store

import (
	"fmt"
	"path/filepath"
)

// Backend selects the member index implementation.
type Backend string

const (
	// BackendSQLite uses SQLite FTS5 (default).
	BackendSQLite Backend = "sqlite"
	// BackendBleve uses Bleve v2.
	BackendBleve Backend = "bleve"
)

// NewMemberIndex creates a member index with the given backend. An
// empty dataDir builds an in-memory index; otherwise the index lives
// under dataDir with a backend-specific extension.
func NewMemberIndex(backend string, dataDir string) (MemberIndex, error) {
	switch Backend(backend) {
	case BackendSQLite, "":
		var path string
		if dataDir != "" {
			path = filepath.Join(dataDir, "members.db")
		}
		return NewSQLiteIndex(path)
	case BackendBleve:
		var path string
		if dataDir != "" {
			path = filepath.Join(dataDir, "members.bleve")
		}
		return NewBleveIndex(path)
	default:
		return nil, fmt.Errorf("unknown index backend %q (valid: sqlite, bleve)", backend)
	}
}
