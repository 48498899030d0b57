// Package ingest turns raw tabular input into a normalized
// bundle.Bundle. The pipeline is all-or-nothing: schema validation,
// then referential integrity, then normalization; any failure aborts
// without producing a partial bundle.
package ingest

import (
	"context"

	"github.com/needledetector/unit-search/internal/tabular"
)

// Logical table names.
const (
	TableMembers           = "members"
	TableMemberGenerations = "member_generations"
	TableUnits             = "units"
	TableUnitMembers       = "unit_members"
	TableMemberAliases     = "member_aliases"
	TableUnitsAliases      = "units_aliases"
)

// RequiredTables lists the tables every load must supply, in
// validation order.
var RequiredTables = []string{
	TableMembers,
	TableMemberGenerations,
	TableUnits,
	TableUnitMembers,
}

// OptionalTables may be absent; they are treated as empty.
var OptionalTables = []string{
	TableMemberAliases,
	TableUnitsAliases,
}

var requiredColumns = map[string][]string{
	TableMembers:           {"member_id", "display_name", "alias", "branch", "status"},
	TableMemberGenerations: {"member_id", "generation", "is_primary"},
	TableUnits:             {"unit_id", "canonical_name", "note"},
	TableUnitMembers:       {"unit_id", "member_id", "weight"},
	TableMemberAliases:     {"member_id", "alias"},
	TableUnitsAliases:      {"unit_id", "alias", "alias_note"},
}

// Tables is a validated table set. Optional tables that were absent
// are filled in empty.
type Tables struct {
	Members           *tabular.Table
	MemberGenerations *tabular.Table
	Units             *tabular.Table
	UnitMembers       *tabular.Table
	MemberAliases     *tabular.Table
	UnitsAliases      *tabular.Table
}

// TableSource supplies a complete raw table set. Implementations fetch
// from a spreadsheet export, a local directory, or a test fixture;
// transport failures surface as apperr.FetchError.
type TableSource interface {
	Fetch(ctx context.Context) (map[string]*tabular.Table, error)
}
