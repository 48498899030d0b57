// Package store provides the full-text member index capability and the
// SQLite archive of published snapshots. Ranking is delegated to the
// underlying inverted-index engine; two backends are available behind
// one interface (SQLite FTS5 by default, Bleve as the alternative).
package store

import "context"

// Document is one member entry to index: the id plus a text blob
// concatenating display name, primary alias, and auxiliary aliases.
type Document struct {
	ID   string
	Text string
}

// MemberIndex is the inverted-index capability used by member search.
// Implementations must be safe for concurrent use.
type MemberIndex interface {
	// Rebuild atomically replaces the entire index contents with docs.
	Rebuild(ctx context.Context, docs []Document) error

	// Search returns up to limit member ids ranked by relevance to
	// keyword. An empty or unparsable keyword yields no results;
	// callers handle the "no keyword" listing themselves.
	Search(ctx context.Context, keyword string, limit int) ([]string, error)

	Close() error
}
