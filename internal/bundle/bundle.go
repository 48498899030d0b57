// Package bundle defines the normalized snapshot records produced by
// ingestion. A Bundle is immutable after construction: reloads build a
// complete replacement out-of-place and publish it atomically, so
// readers never observe units referencing half-loaded members.
package bundle

import (
	"sort"
	"strings"
)

// DefaultWeight is the sentinel membership weight applied when the
// source cell is missing or non-numeric. It deprioritizes the
// membership without excluding it.
const DefaultWeight = 9999

// Member is one normalized member record.
type Member struct {
	ID           string `json:"member_id"`
	DisplayName  string `json:"display_name"`
	PrimaryAlias string `json:"alias,omitempty"`
	Branch       string `json:"branch"`
	Status       string `json:"status"`
	// Aliases are the auxiliary aliases (display case preserved);
	// the primary alias is kept separately.
	Aliases     []string `json:"aliases,omitempty"`
	Generations []string `json:"generations,omitempty"` // sorted
}

// UnitMember is one membership edge with its prominence weight.
// Lower weight means more prominent.
type UnitMember struct {
	MemberID string  `json:"member_id"`
	Weight   float64 `json:"weight"`
}

// Unit is one normalized unit with its ordered membership and facets
// derived from current members.
type Unit struct {
	ID         string   `json:"unit_id"`
	Name       string   `json:"name"`
	Note       string   `json:"note,omitempty"`
	Aliases    []string `json:"aliases,omitempty"`
	AliasNotes []string `json:"alias_notes,omitempty"`

	// Members is ordered by weight ascending, ties in source order.
	Members []UnitMember `json:"members"`
	// MemberNames mirrors Members with display names, for rendering.
	MemberNames []string `json:"member_names"`
	// MemberSet is the id set used for match scoring.
	MemberSet map[string]struct{} `json:"-"`

	// Facets are unioned over current members, recomputed on every
	// build, never stored as ground truth.
	Branches    map[string]struct{} `json:"-"`
	Statuses    map[string]struct{} `json:"-"`
	Generations map[string]struct{} `json:"-"`
}

// Membership is one row of the normalized membership table, kept in
// source order for the feature-matrix builder.
type Membership struct {
	UnitID   string
	MemberID string
	Weight   float64
}

// Bundle is one internally consistent snapshot of all normalized data.
type Bundle struct {
	Members     map[string]*Member
	MemberOrder []string // members-table order
	Units       []*Unit  // units-table order
	UnitByID    map[string]*Unit

	// AliasLookup maps lowercase alias to member id. On duplicate
	// alias strings the last processed row wins.
	AliasLookup map[string]string

	// Memberships is the normalized unit_members table (weights
	// already coerced, unknown ids dropped).
	Memberships []Membership

	// Facet option sets for query population, sorted.
	Branches    []string
	Statuses    []string
	Generations []string
}

// Member returns the member with the given id.
func (b *Bundle) Member(id string) (*Member, bool) {
	m, ok := b.Members[id]
	return m, ok
}

// Unit returns the unit with the given id.
func (b *Bundle) Unit(id string) (*Unit, bool) {
	u, ok := b.UnitByID[id]
	return u, ok
}

// ResolveAlias returns the member id registered for alias, matching
// case-insensitively.
func (b *Bundle) ResolveAlias(alias string) (string, bool) {
	id, ok := b.AliasLookup[strings.ToLower(alias)]
	return id, ok
}

// SortedSet returns the sorted elements of a string set.
func SortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
