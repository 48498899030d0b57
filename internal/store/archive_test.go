package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/needledetector/unit-search/internal/bundle"
)

func archiveBundle() *bundle.Bundle {
	m1 := &bundle.Member{ID: "m1", DisplayName: "Alice", PrimaryAlias: "ace", Branch: "A", Status: "active",
		Aliases: []string{"Acey"}, Generations: []string{"gen1"}}
	m2 := &bundle.Member{ID: "m2", DisplayName: "Bob", Branch: "B", Status: "active"}
	u1 := &bundle.Unit{
		ID: "u1", Name: "Duo One", Note: "first",
		Aliases: []string{"D1"},
		Members: []bundle.UnitMember{{MemberID: "m1", Weight: 1}, {MemberID: "m2", Weight: 2}},
	}
	return &bundle.Bundle{
		Members:     map[string]*bundle.Member{"m1": m1, "m2": m2},
		MemberOrder: []string{"m1", "m2"},
		Units:       []*bundle.Unit{u1},
		UnitByID:    map[string]*bundle.Unit{"u1": u1},
	}
}

func TestArchive_Replace(t *testing.T) {
	a, err := NewArchive("")
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	ctx := context.Background()
	require.NoError(t, a.Replace(ctx, archiveBundle()))

	for table, want := range map[string]int{
		"members":            2,
		"member_aliases":     1,
		"member_generations": 1,
		"units":              1,
		"unit_aliases":       1,
		"unit_members":       2,
	} {
		n, err := a.Count(ctx, table)
		require.NoError(t, err, table)
		assert.Equal(t, want, n, table)
	}
}

func TestArchive_ReplaceDropsPreviousSnapshot(t *testing.T) {
	a, err := NewArchive("")
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	ctx := context.Background()
	require.NoError(t, a.Replace(ctx, archiveBundle()))

	// Shrunk bundle fully supersedes the previous rows.
	small := archiveBundle()
	small.Units = nil
	small.UnitByID = map[string]*bundle.Unit{}
	require.NoError(t, a.Replace(ctx, small))

	n, err := a.Count(ctx, "unit_members")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = a.Count(ctx, "members")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestArchive_CountRejectsUnknownTable(t *testing.T) {
	a, err := NewArchive("")
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	_, err = a.Count(context.Background(), "sqlite_master")
	assert.Error(t, err)
}
