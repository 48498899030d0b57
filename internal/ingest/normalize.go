package ingest

import (
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/needledetector/unit-search/internal/bundle"
	"github.com/needledetector/unit-search/internal/tabular"
)

// Build validates raw tables and normalizes them into a Bundle. This
// is the single ingestion entry point: either a complete bundle comes
// back or an error, never a partial result.
func Build(raw map[string]*tabular.Table) (*bundle.Bundle, error) {
	tables, err := Validate(raw)
	if err != nil {
		return nil, err
	}
	return Normalize(tables), nil
}

// Normalize converts a validated table set into a Bundle. Rows with
// empty ids are skipped; ids referencing unknown members are skipped
// defensively even though validation already ruled them out.
func Normalize(t *Tables) *bundle.Bundle {
	b := &bundle.Bundle{
		Members:     map[string]*bundle.Member{},
		UnitByID:    map[string]*bundle.Unit{},
		AliasLookup: map[string]string{},
	}

	branches := map[string]struct{}{}
	statuses := map[string]struct{}{}
	generations := map[string]struct{}{}

	for _, row := range t.Members.Rows {
		id := strings.TrimSpace(row.Get("member_id"))
		if id == "" {
			continue
		}
		m := &bundle.Member{
			ID:           id,
			DisplayName:  strings.TrimSpace(row.Get("display_name")),
			PrimaryAlias: strings.TrimSpace(row.Get("alias")),
			Branch:       strings.TrimSpace(row.Get("branch")),
			Status:       strings.TrimSpace(row.Get("status")),
		}
		if m.DisplayName == "" {
			m.DisplayName = id
		}
		b.Members[id] = m
		b.MemberOrder = append(b.MemberOrder, id)
		registerAlias(b, m.PrimaryAlias, id)
		if m.Branch != "" {
			branches[m.Branch] = struct{}{}
		}
		if m.Status != "" {
			statuses[m.Status] = struct{}{}
		}
	}

	for _, row := range t.MemberAliases.Rows {
		id := strings.TrimSpace(row.Get("member_id"))
		alias := strings.TrimSpace(row.Get("alias"))
		if id == "" || alias == "" {
			continue
		}
		registerAlias(b, alias, id)
		if m, ok := b.Members[id]; ok {
			m.Aliases = append(m.Aliases, alias)
		}
	}

	memberGens := map[string]map[string]struct{}{}
	for _, row := range t.MemberGenerations.Rows {
		id := strings.TrimSpace(row.Get("member_id"))
		gen := strings.TrimSpace(row.Get("generation"))
		if id == "" || gen == "" {
			continue
		}
		if _, ok := b.Members[id]; !ok {
			continue
		}
		if memberGens[id] == nil {
			memberGens[id] = map[string]struct{}{}
		}
		memberGens[id][gen] = struct{}{}
		generations[gen] = struct{}{}
	}
	for id, set := range memberGens {
		b.Members[id].Generations = bundle.SortedSet(set)
	}

	unitAliases := map[string][]string{}
	unitAliasNotes := map[string][]string{}
	for _, row := range t.UnitsAliases.Rows {
		id := strings.TrimSpace(row.Get("unit_id"))
		alias := strings.TrimSpace(row.Get("alias"))
		if id == "" || alias == "" {
			continue
		}
		unitAliases[id] = append(unitAliases[id], alias)
		if note := strings.TrimSpace(row.Get("alias_note")); note != "" {
			unitAliasNotes[id] = append(unitAliasNotes[id], alias+": "+note)
		}
	}

	memberships := map[string][]bundle.UnitMember{}
	for _, row := range t.UnitMembers.Rows {
		uid := strings.TrimSpace(row.Get("unit_id"))
		mid := strings.TrimSpace(row.Get("member_id"))
		if uid == "" || mid == "" {
			continue
		}
		if _, ok := b.Members[mid]; !ok {
			continue
		}
		w := coerceWeight(row.Get("weight"))
		memberships[uid] = append(memberships[uid], bundle.UnitMember{MemberID: mid, Weight: w})
		b.Memberships = append(b.Memberships, bundle.Membership{UnitID: uid, MemberID: mid, Weight: w})
	}

	for _, row := range t.Units.Rows {
		uid := strings.TrimSpace(row.Get("unit_id"))
		if uid == "" {
			continue
		}
		u := &bundle.Unit{
			ID:          uid,
			Note:        strings.TrimSpace(row.Get("note")),
			Aliases:     unitAliases[uid],
			AliasNotes:  unitAliasNotes[uid],
			MemberSet:   map[string]struct{}{},
			Branches:    map[string]struct{}{},
			Statuses:    map[string]struct{}{},
			Generations: map[string]struct{}{},
		}

		u.Members = append(u.Members, memberships[uid]...)
		sort.SliceStable(u.Members, func(i, j int) bool {
			return u.Members[i].Weight < u.Members[j].Weight
		})
		for _, um := range u.Members {
			m := b.Members[um.MemberID]
			u.MemberSet[um.MemberID] = struct{}{}
			u.MemberNames = append(u.MemberNames, m.DisplayName)
			if m.Branch != "" {
				u.Branches[m.Branch] = struct{}{}
			}
			if m.Status != "" {
				u.Statuses[m.Status] = struct{}{}
			}
			for _, g := range m.Generations {
				u.Generations[g] = struct{}{}
			}
		}

		// Canonical name falls back to the first known alias, then
		// the unit id.
		u.Name = strings.TrimSpace(row.Get("canonical_name"))
		if u.Name == "" {
			if len(u.Aliases) > 0 {
				u.Name = u.Aliases[0]
			} else {
				u.Name = uid
			}
		}

		b.Units = append(b.Units, u)
		b.UnitByID[uid] = u
	}

	b.Branches = bundle.SortedSet(branches)
	b.Statuses = bundle.SortedSet(statuses)
	b.Generations = bundle.SortedSet(generations)
	return b
}

// registerAlias records alias -> id lowercase-keyed. Last writer wins;
// a collision between different members is a data-quality conflict
// worth surfacing, so it is logged at ingestion time.
func registerAlias(b *bundle.Bundle, alias, id string) {
	if alias == "" {
		return
	}
	key := strings.ToLower(alias)
	if prev, ok := b.AliasLookup[key]; ok && prev != id {
		slog.Warn("alias collision",
			slog.String("alias", alias),
			slog.String("kept", id),
			slog.String("replaced", prev))
	}
	b.AliasLookup[key] = id
}

// coerceWeight parses a membership weight, applying the sentinel
// default on empty, non-numeric, or non-finite input.
func coerceWeight(raw string) float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return bundle.DefaultWeight
	}
	w, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(w) || math.IsInf(w, 0) {
		return bundle.DefaultWeight
	}
	return w
}
