package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/needledetector/unit-search/internal/bundle"
	"github.com/needledetector/unit-search/internal/store"
)

func searchBundle() *bundle.Bundle {
	members := []*bundle.Member{
		{ID: "m1", DisplayName: "Alice", PrimaryAlias: "ace", Aliases: []string{"Acey"},
			Branch: "A", Status: "active", Generations: []string{"gen1"}},
		{ID: "m2", DisplayName: "Bob", Branch: "B", Status: "active", Generations: []string{"gen2"}},
		{ID: "m3", DisplayName: "Carol", PrimaryAlias: "cc", Branch: "A", Status: "graduated",
			Generations: []string{"gen1", "gen2"}},
	}
	b := &bundle.Bundle{Members: map[string]*bundle.Member{}}
	for _, m := range members {
		b.Members[m.ID] = m
		b.MemberOrder = append(b.MemberOrder, m.ID)
	}
	return b
}

func searchIndex(t *testing.T, b *bundle.Bundle) store.MemberIndex {
	t.Helper()
	idx, err := store.NewSQLiteIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	require.NoError(t, idx.Rebuild(context.Background(), Documents(b)))
	return idx
}

func ids(results []MemberResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.MemberID
	}
	return out
}

func TestDocuments_ConcatenatesNamesAndAliases(t *testing.T) {
	docs := Documents(searchBundle())
	require.Len(t, docs, 3)
	assert.Equal(t, "m1", docs[0].ID)
	assert.Equal(t, "Alice ace Acey", docs[0].Text)
	assert.Equal(t, "Bob", docs[1].Text)
}

func TestMembers_KeywordLookup(t *testing.T) {
	b := searchBundle()
	idx := searchIndex(t, b)

	got, err := Members(context.Background(), b, idx, Params{Keyword: "acey"})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, ids(got))
}

func TestMembers_NoKeywordReturnsAllInBundleOrder(t *testing.T) {
	b := searchBundle()
	idx := searchIndex(t, b)

	got, err := Members(context.Background(), b, idx, Params{})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(got))
}

func TestMembers_FacetFilters(t *testing.T) {
	b := searchBundle()
	idx := searchIndex(t, b)
	ctx := context.Background()

	got, err := Members(ctx, b, idx, Params{Branches: []string{"A"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m3"}, ids(got))

	got, err = Members(ctx, b, idx, Params{Statuses: []string{"graduated"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"m3"}, ids(got))

	// Generation matches on any shared label.
	got, err = Members(ctx, b, idx, Params{Generations: []string{"gen2"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m3"}, ids(got))

	// AND across dimensions.
	got, err = Members(ctx, b, idx, Params{Branches: []string{"A"}, Statuses: []string{"active"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, ids(got))
}

func TestMembers_KeywordPlusFacets(t *testing.T) {
	b := searchBundle()
	idx := searchIndex(t, b)

	// "ace" hits m1 only; a conflicting facet empties the result.
	got, err := Members(context.Background(), b, idx, Params{Keyword: "ace", Branches: []string{"B"}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMembers_Pagination(t *testing.T) {
	b := searchBundle()
	idx := searchIndex(t, b)
	ctx := context.Background()

	got, err := Members(ctx, b, idx, Params{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, ids(got))

	got, err = Members(ctx, b, idx, Params{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"m3"}, ids(got))

	got, err = Members(ctx, b, idx, Params{Limit: 2, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMembers_LimitValidation(t *testing.T) {
	b := searchBundle()
	idx := searchIndex(t, b)
	ctx := context.Background()

	_, err := Members(ctx, b, idx, Params{Limit: 101})
	assert.Error(t, err)

	_, err = Members(ctx, b, idx, Params{Limit: -1})
	assert.Error(t, err)

	_, err = Members(ctx, b, idx, Params{Offset: -1})
	assert.Error(t, err)
}

func TestMembers_ResultCarriesMetadata(t *testing.T) {
	b := searchBundle()
	idx := searchIndex(t, b)

	got, err := Members(context.Background(), b, idx, Params{Keyword: "carol"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	r := got[0]
	assert.Equal(t, "Carol", r.DisplayName)
	assert.Equal(t, "cc", r.Alias)
	assert.Equal(t, "A", r.Branch)
	assert.Equal(t, "graduated", r.Status)
	assert.Equal(t, []string{"gen1", "gen2"}, r.Generations)
}
