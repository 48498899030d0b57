package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/needledetector/unit-search/internal/bundle"
)

// Archive persists the normalized tables of the most recently
// published snapshot into SQLite, replacing the previous contents on
// every publish. It is a side artifact for inspection and external
// tooling; queries never read from it.
type Archive struct {
	mu sync.Mutex
	db *sql.DB
}

// NewArchive opens the archive database at path ("" = in-memory).
func NewArchive(path string) (*Archive, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create archive directory: %w", err)
		}
		dsn = path
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return &Archive{db: db}, nil
}

var archiveSchema = `
DROP TABLE IF EXISTS members;
DROP TABLE IF EXISTS member_aliases;
DROP TABLE IF EXISTS member_generations;
DROP TABLE IF EXISTS units;
DROP TABLE IF EXISTS unit_aliases;
DROP TABLE IF EXISTS unit_members;

CREATE TABLE members (
	member_id    TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	alias        TEXT NOT NULL,
	branch       TEXT NOT NULL,
	status       TEXT NOT NULL
);
CREATE TABLE member_aliases (
	member_id TEXT NOT NULL,
	alias     TEXT NOT NULL
);
CREATE TABLE member_generations (
	member_id  TEXT NOT NULL,
	generation TEXT NOT NULL
);
CREATE TABLE units (
	unit_id        TEXT PRIMARY KEY,
	canonical_name TEXT NOT NULL,
	note           TEXT NOT NULL
);
CREATE TABLE unit_aliases (
	unit_id TEXT NOT NULL,
	alias   TEXT NOT NULL
);
CREATE TABLE unit_members (
	unit_id   TEXT NOT NULL,
	member_id TEXT NOT NULL,
	weight    REAL NOT NULL,
	position  INTEGER NOT NULL
);
`

// Replace swaps the archive contents for the given bundle in one
// transaction.
func (a *Archive) Replace(ctx context.Context, b *bundle.Bundle) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive replace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, archiveSchema); err != nil {
		return fmt.Errorf("reset archive schema: %w", err)
	}

	for _, id := range b.MemberOrder {
		m := b.Members[id]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO members(member_id, display_name, alias, branch, status) VALUES (?, ?, ?, ?, ?)`,
			m.ID, m.DisplayName, m.PrimaryAlias, m.Branch, m.Status); err != nil {
			return fmt.Errorf("archive member %s: %w", m.ID, err)
		}
		for _, alias := range m.Aliases {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO member_aliases(member_id, alias) VALUES (?, ?)`, m.ID, alias); err != nil {
				return fmt.Errorf("archive alias for %s: %w", m.ID, err)
			}
		}
		for _, gen := range m.Generations {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO member_generations(member_id, generation) VALUES (?, ?)`, m.ID, gen); err != nil {
				return fmt.Errorf("archive generation for %s: %w", m.ID, err)
			}
		}
	}

	for _, u := range b.Units {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO units(unit_id, canonical_name, note) VALUES (?, ?, ?)`,
			u.ID, u.Name, u.Note); err != nil {
			return fmt.Errorf("archive unit %s: %w", u.ID, err)
		}
		for _, alias := range u.Aliases {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO unit_aliases(unit_id, alias) VALUES (?, ?)`, u.ID, alias); err != nil {
				return fmt.Errorf("archive unit alias for %s: %w", u.ID, err)
			}
		}
		for i, um := range u.Members {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO unit_members(unit_id, member_id, weight, position) VALUES (?, ?, ?, ?)`,
				u.ID, um.MemberID, um.Weight, i); err != nil {
				return fmt.Errorf("archive membership %s/%s: %w", u.ID, um.MemberID, err)
			}
		}
	}
	return tx.Commit()
}

// Count returns the row count of one archive table.
func (a *Archive) Count(ctx context.Context, table string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch table {
	case "members", "member_aliases", "member_generations", "units", "unit_aliases", "unit_members":
	default:
		return 0, fmt.Errorf("unknown archive table %q", table)
	}
	var n int
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n)
	return n, err
}

// Close releases the archive database.
func (a *Archive) Close() error {
	return a.db.Close()
}
