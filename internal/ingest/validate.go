package ingest

import (
	"sort"
	"strings"

	"github.com/needledetector/unit-search/internal/apperr"
	"github.com/needledetector/unit-search/internal/tabular"
)

// Validate checks schema completeness and referential integrity of a
// raw table set. Missing optional tables are replaced by empty ones.
// The first offending table is reported with all of its missing
// columns; reference checks report the full sorted set of invalid ids.
func Validate(raw map[string]*tabular.Table) (*Tables, error) {
	for _, name := range RequiredTables {
		t, ok := raw[name]
		if !ok {
			return nil, &apperr.SchemaError{Table: name, Columns: requiredColumns[name]}
		}
		if err := checkColumns(name, t); err != nil {
			return nil, err
		}
	}
	for _, name := range OptionalTables {
		t, ok := raw[name]
		if !ok {
			continue
		}
		if err := checkColumns(name, t); err != nil {
			return nil, err
		}
	}

	tables := &Tables{
		Members:           raw[TableMembers],
		MemberGenerations: raw[TableMemberGenerations],
		Units:             raw[TableUnits],
		UnitMembers:       raw[TableUnitMembers],
		MemberAliases:     optional(raw, TableMemberAliases),
		UnitsAliases:      optional(raw, TableUnitsAliases),
	}

	memberIDs := idSet(tables.Members, "member_id")
	unitIDs := idSet(tables.Units, "unit_id")

	refChecks := []struct {
		name    string
		table   *tabular.Table
		column  string
		allowed map[string]struct{}
		target  string
	}{
		{TableMemberGenerations, tables.MemberGenerations, "member_id", memberIDs, TableMembers},
		{TableUnitMembers, tables.UnitMembers, "member_id", memberIDs, TableMembers},
		{TableUnitMembers, tables.UnitMembers, "unit_id", unitIDs, TableUnits},
		{TableMemberAliases, tables.MemberAliases, "member_id", memberIDs, TableMembers},
		{TableUnitsAliases, tables.UnitsAliases, "unit_id", unitIDs, TableUnits},
	}
	for _, c := range refChecks {
		if err := checkReferences(c.name, c.table, c.column, c.allowed, c.target); err != nil {
			return nil, err
		}
	}
	return tables, nil
}

func checkColumns(name string, t *tabular.Table) error {
	var missing []string
	for _, col := range requiredColumns[name] {
		if !t.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &apperr.SchemaError{Table: name, Columns: missing}
	}
	return nil
}

// checkReferences verifies every non-empty id in table.column exists
// in allowed.
func checkReferences(name string, t *tabular.Table, column string, allowed map[string]struct{}, target string) error {
	invalid := map[string]struct{}{}
	for _, row := range t.Rows {
		id := strings.TrimSpace(row.Get(column))
		if id == "" {
			continue
		}
		if _, ok := allowed[id]; !ok {
			invalid[id] = struct{}{}
		}
	}
	if len(invalid) == 0 {
		return nil
	}
	ids := make([]string, 0, len(invalid))
	for id := range invalid {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return &apperr.IDConsistencyError{Table: name, Column: column, Target: target, IDs: ids}
}

func idSet(t *tabular.Table, column string) map[string]struct{} {
	set := make(map[string]struct{}, len(t.Rows))
	for _, row := range t.Rows {
		if id := strings.TrimSpace(row.Get(column)); id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

func optional(raw map[string]*tabular.Table, name string) *tabular.Table {
	if t, ok := raw[name]; ok {
		return t
	}
	return tabular.Empty(requiredColumns[name]...)
}
