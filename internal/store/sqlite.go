package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO
)

// SQLiteIndex implements MemberIndex on SQLite FTS5. FTS5's bm25()
// provides the ranking; the contenders are small (a few thousand
// members), so the whole index is rebuilt in one transaction per
// snapshot publish.
type SQLiteIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

var _ MemberIndex = (*SQLiteIndex)(nil)

// NewSQLiteIndex opens (or creates) an FTS5 index at path. An empty
// path creates an in-memory index, used by tests and the default
// serve mode.
func NewSQLiteIndex(path string) (*SQLiteIndex, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}
	// Single connection: one writer, and the in-memory DSN would
	// otherwise open a separate empty database per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if path != "" {
		pragmas := []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA busy_timeout = 5000",
			"PRAGMA synchronous = NORMAL",
		}
		for _, p := range pragmas {
			if _, err := db.Exec(p); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("set pragma: %w", err)
			}
		}
	}

	schema := `
	CREATE VIRTUAL TABLE IF NOT EXISTS member_fts USING fts5(
		member_id UNINDEXED,
		content,
		tokenize='unicode61'
	);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create fts table: %w", err)
	}
	return &SQLiteIndex{db: db}, nil
}

// Rebuild replaces all indexed documents in one transaction.
func (s *SQLiteIndex) Rebuild(ctx context.Context, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rebuild: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM member_fts`); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO member_fts(member_id, content) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, doc := range docs {
		if _, err := stmt.ExecContext(ctx, doc.ID, doc.Text); err != nil {
			return fmt.Errorf("index member %s: %w", doc.ID, err)
		}
	}
	return tx.Commit()
}

// Search returns member ids ranked by bm25. FTS5 syntax errors from
// user keywords are treated as no results, not failures.
func (s *SQLiteIndex) Search(ctx context.Context, keyword string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}

	expr := matchExpr(keyword)
	if expr == "" {
		return nil, nil
	}

	// bm25() is negative, lower = better; ascending order ranks best
	// first.
	rows, err := s.db.QueryContext(ctx, `
		SELECT member_id, bm25(member_fts) AS rank
		FROM member_fts
		WHERE content MATCH ?
		ORDER BY rank
		LIMIT ?`, expr, limit)
	if err != nil {
		if strings.Contains(err.Error(), "fts5") || strings.Contains(err.Error(), "syntax error") {
			return nil, nil
		}
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		var rank float64
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close releases the database handle.
func (s *SQLiteIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// matchExpr converts a free-text keyword into an FTS5 MATCH
// expression: each whitespace-separated term is quoted (neutralizing
// operator syntax) and terms combine with implicit AND.
func matchExpr(keyword string) string {
	terms := strings.Fields(keyword)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}
