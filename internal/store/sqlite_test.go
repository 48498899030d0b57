package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memberDocs() []Document {
	return []Document{
		{ID: "m1", Text: "Alice ace Acey"},
		{ID: "m2", Text: "Bob bobby"},
		{ID: "m3", Text: "Carol cc ace-like"},
	}
}

func TestSQLiteIndex_RebuildAndSearch(t *testing.T) {
	idx, err := NewSQLiteIndex("")
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Rebuild(context.Background(), memberDocs()))

	ids, err := idx.Search(context.Background(), "alice", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, ids)
}

func TestSQLiteIndex_SearchIsCaseInsensitive(t *testing.T) {
	idx, err := NewSQLiteIndex("")
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()
	require.NoError(t, idx.Rebuild(context.Background(), memberDocs()))

	ids, err := idx.Search(context.Background(), "BOBBY", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"m2"}, ids)
}

func TestSQLiteIndex_RebuildReplacesContents(t *testing.T) {
	idx, err := NewSQLiteIndex("")
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()
	require.NoError(t, idx.Rebuild(context.Background(), memberDocs()))

	// Second rebuild drops m1 entirely.
	require.NoError(t, idx.Rebuild(context.Background(), []Document{
		{ID: "m2", Text: "Bob bobby"},
	}))

	ids, err := idx.Search(context.Background(), "alice", 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = idx.Search(context.Background(), "bobby", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"m2"}, ids)
}

func TestSQLiteIndex_EmptyKeywordNoResults(t *testing.T) {
	idx, err := NewSQLiteIndex("")
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()
	require.NoError(t, idx.Rebuild(context.Background(), memberDocs()))

	ids, err := idx.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSQLiteIndex_OperatorSyntaxTreatedAsLiterals(t *testing.T) {
	idx, err := NewSQLiteIndex("")
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()
	require.NoError(t, idx.Rebuild(context.Background(), memberDocs()))

	// Quoting neutralizes FTS5 operators; this must not error.
	ids, err := idx.Search(context.Background(), `alice AND NOT ("`, 10)
	require.NoError(t, err)
	assert.NotContains(t, ids, "m2")
}

func TestSQLiteIndex_MultiTermIsConjunctive(t *testing.T) {
	idx, err := NewSQLiteIndex("")
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()
	require.NoError(t, idx.Rebuild(context.Background(), memberDocs()))

	ids, err := idx.Search(context.Background(), "alice ace", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, ids)
}

func TestSQLiteIndex_LimitApplied(t *testing.T) {
	idx, err := NewSQLiteIndex("")
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()
	require.NoError(t, idx.Rebuild(context.Background(), []Document{
		{ID: "m1", Text: "ace one"},
		{ID: "m2", Text: "ace two"},
		{ID: "m3", Text: "ace three"},
	}))

	ids, err := idx.Search(context.Background(), "ace", 2)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestSQLiteIndex_FileBacked(t *testing.T) {
	path := t.TempDir() + "/members.db"
	idx, err := NewSQLiteIndex(path)
	require.NoError(t, err)
	require.NoError(t, idx.Rebuild(context.Background(), memberDocs()))
	require.NoError(t, idx.Close())

	reopened, err := NewSQLiteIndex(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	ids, err := reopened.Search(context.Background(), "carol", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"m3"}, ids)
}

func TestMatchExpr(t *testing.T) {
	assert.Equal(t, "", matchExpr(""))
	assert.Equal(t, `"alice"`, matchExpr("alice"))
	assert.Equal(t, `"alice" "ace"`, matchExpr(" alice  ace "))
	assert.Equal(t, `"a""b"`, matchExpr(`a"b`))
}
