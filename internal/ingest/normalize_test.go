package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/needledetector/unit-search/internal/bundle"
	"github.com/needledetector/unit-search/internal/tabular"
)

func buildFixture(t *testing.T) *bundle.Bundle {
	t.Helper()
	b, err := Build(fixtureTables(t))
	require.NoError(t, err)
	return b
}

func TestNormalize_Members(t *testing.T) {
	b := buildFixture(t)

	require.Len(t, b.Members, 3)
	assert.Equal(t, []string{"m1", "m2", "m3"}, b.MemberOrder)

	m1, ok := b.Member("m1")
	require.True(t, ok)
	assert.Equal(t, "Alice", m1.DisplayName)
	assert.Equal(t, "ace", m1.PrimaryAlias)
	assert.Equal(t, []string{"Acey"}, m1.Aliases)
	assert.Equal(t, []string{"gen1"}, m1.Generations)
}

func TestNormalize_DisplayNameFallsBackToID(t *testing.T) {
	raw := fixtureTables(t)
	tbl, err := tabular.ReadCSV("member_id,display_name,alias,branch,status\nm1,,,,\n")
	require.NoError(t, err)
	raw[TableMembers] = tbl
	raw[TableMemberGenerations] = tabular.Empty("member_id", "generation", "is_primary")
	raw[TableUnitMembers] = tabular.Empty("unit_id", "member_id", "weight")
	delete(raw, TableMemberAliases)
	delete(raw, TableUnitsAliases)

	b, err := Build(raw)
	require.NoError(t, err)
	m, _ := b.Member("m1")
	assert.Equal(t, "m1", m.DisplayName)
}

func TestNormalize_AliasLookupIsCaseInsensitive(t *testing.T) {
	b := buildFixture(t)

	id, ok := b.ResolveAlias("ACEY")
	require.True(t, ok)
	assert.Equal(t, "m1", id)

	id, ok = b.ResolveAlias("ace")
	require.True(t, ok)
	assert.Equal(t, "m1", id)
}

func TestNormalize_AliasCollisionLastWriterWins(t *testing.T) {
	raw := fixtureTables(t)
	tbl, err := tabular.ReadCSV("member_id,alias\nm1,shared\nm2,Shared\n")
	require.NoError(t, err)
	raw[TableMemberAliases] = tbl

	b, err := Build(raw)
	require.NoError(t, err)
	id, ok := b.ResolveAlias("shared")
	require.True(t, ok)
	assert.Equal(t, "m2", id)
}

func TestNormalize_UnitMembershipOrderedByWeight(t *testing.T) {
	b := buildFixture(t)

	u2, ok := b.Unit("u2")
	require.True(t, ok)
	// u2 rows arrive as (m1,3), (m3,1); ascending weight puts m3 first.
	require.Len(t, u2.Members, 2)
	assert.Equal(t, "m3", u2.Members[0].MemberID)
	assert.Equal(t, "m1", u2.Members[1].MemberID)
	assert.Equal(t, []string{"Carol", "Alice"}, u2.MemberNames)
}

func TestNormalize_WeightTiesPreserveSourceOrder(t *testing.T) {
	raw := fixtureTables(t)
	tbl, err := tabular.ReadCSV("unit_id,member_id,weight\n" +
		"u1,m2,5\n" +
		"u1,m1,5\n" +
		"u1,m3,5\n")
	require.NoError(t, err)
	raw[TableUnitMembers] = tbl

	b, err := Build(raw)
	require.NoError(t, err)
	u1, _ := b.Unit("u1")
	assert.Equal(t, []string{"Bob", "Alice", "Carol"}, u1.MemberNames)
}

func TestNormalize_NonNumericWeightGetsSentinel(t *testing.T) {
	raw := fixtureTables(t)
	tbl, err := tabular.ReadCSV("unit_id,member_id,weight\n" +
		"u1,m1,oops\n" +
		"u1,m2,\n" +
		"u1,m3,2\n")
	require.NoError(t, err)
	raw[TableUnitMembers] = tbl

	b, err := Build(raw)
	require.NoError(t, err)
	u1, _ := b.Unit("u1")
	// m3 has a real weight, the sentinel rows sort after it.
	assert.Equal(t, "m3", u1.Members[0].MemberID)
	assert.Equal(t, float64(bundle.DefaultWeight), u1.Members[1].Weight)
	assert.Equal(t, float64(bundle.DefaultWeight), u1.Members[2].Weight)
}

func TestNormalize_UnitFacetsDerivedFromMembers(t *testing.T) {
	b := buildFixture(t)

	u2, _ := b.Unit("u2")
	assert.Equal(t, []string{"A"}, bundle.SortedSet(u2.Branches))
	assert.Equal(t, []string{"active", "graduated"}, bundle.SortedSet(u2.Statuses))
	assert.Equal(t, []string{"gen1"}, bundle.SortedSet(u2.Generations))
}

func TestNormalize_UnitNameFallbackChain(t *testing.T) {
	b := buildFixture(t)

	u1, _ := b.Unit("u1")
	assert.Equal(t, "Duo One", u1.Name)

	// u2 has a blank canonical_name but an alias.
	u2, _ := b.Unit("u2")
	assert.Equal(t, "The Second", u2.Name)

	// Without aliases the unit id is the name of last resort.
	raw := fixtureTables(t)
	delete(raw, TableUnitsAliases)
	b2, err := Build(raw)
	require.NoError(t, err)
	u2b, _ := b2.Unit("u2")
	assert.Equal(t, "u2", u2b.Name)
}

func TestNormalize_UnitAliasNotes(t *testing.T) {
	b := buildFixture(t)
	u2, _ := b.Unit("u2")
	assert.Equal(t, []string{"The Second"}, u2.Aliases)
	assert.Equal(t, []string{"The Second: fan name"}, u2.AliasNotes)
}

func TestNormalize_FacetOptionSetsSorted(t *testing.T) {
	b := buildFixture(t)
	assert.Equal(t, []string{"A", "B"}, b.Branches)
	assert.Equal(t, []string{"active", "graduated"}, b.Statuses)
	assert.Equal(t, []string{"gen1", "gen2"}, b.Generations)
}

func TestNormalize_SkipsEmptyMemberID(t *testing.T) {
	raw := fixtureTables(t)
	tbl, err := tabular.ReadCSV("member_id,display_name,alias,branch,status\n" +
		",Ghost,,,\n" +
		"m1,Alice,,A,active\n")
	require.NoError(t, err)
	raw[TableMembers] = tbl
	raw[TableMemberGenerations] = tabular.Empty("member_id", "generation", "is_primary")
	raw[TableUnitMembers] = tabular.Empty("unit_id", "member_id", "weight")
	delete(raw, TableMemberAliases)
	delete(raw, TableUnitsAliases)

	b, err := Build(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, b.MemberOrder)
}

func TestNormalize_Idempotent(t *testing.T) {
	// Re-running the pipeline on identical inputs must yield identical
	// bundles.
	first := buildFixture(t)
	second := buildFixture(t)
	require.Equal(t, first, second)
}

func TestNormalize_MembershipTableKeepsSourceOrder(t *testing.T) {
	b := buildFixture(t)
	require.Len(t, b.Memberships, 4)
	assert.Equal(t, bundle.Membership{UnitID: "u1", MemberID: "m1", Weight: 1}, b.Memberships[0])
	assert.Equal(t, bundle.Membership{UnitID: "u2", MemberID: "m3", Weight: 1}, b.Memberships[3])
}
