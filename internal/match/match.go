// Package match scores units against an arbitrary member subset using
// the Jaccard index and applies facet post-filters to the results.
package match

import (
	"sort"

	"github.com/needledetector/unit-search/internal/bundle"
)

// Query is one unit-match request. Members must be non-empty; the
// facet sets are optional post-filters.
type Query struct {
	Members     map[string]struct{}
	Branches    map[string]struct{}
	Statuses    map[string]struct{}
	Generations map[string]struct{}
}

// NewQuery builds a Query from id slices, dropping empty strings.
func NewQuery(memberIDs, branches, statuses, generations []string) Query {
	return Query{
		Members:     toSet(memberIDs),
		Branches:    toSet(branches),
		Statuses:    toSet(statuses),
		Generations: toSet(generations),
	}
}

// Result is one matched unit. Score is in [0,1]; Intersection is the
// absolute overlap used as the tie-breaker.
type Result struct {
	Unit         *bundle.Unit
	Score        float64
	Intersection int
}

// Units scores every unit in the bundle against the query member set.
// Units with zero intersection are excluded entirely. Results sort by
// (score descending, intersection descending); remaining ties keep the
// bundle's unit order. Facet filters require a non-empty intersection
// per selected dimension (AND across dimensions, OR within one).
func Units(b *bundle.Bundle, q Query) []Result {
	var results []Result
	for _, u := range b.Units {
		inter := intersection(q.Members, u.MemberSet)
		if inter == 0 {
			continue
		}
		if !passesFacets(u, q) {
			continue
		}
		results = append(results, Result{
			Unit:         u,
			Score:        Jaccard(q.Members, u.MemberSet),
			Intersection: inter,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Intersection > results[j].Intersection
	})
	return results
}

// Jaccard returns |a∩b| / |a∪b|, defined as 0 when both sets are
// empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := intersection(a, b)
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func passesFacets(u *bundle.Unit, q Query) bool {
	if len(q.Branches) > 0 && intersection(q.Branches, u.Branches) == 0 {
		return false
	}
	if len(q.Statuses) > 0 && intersection(q.Statuses, u.Statuses) == 0 {
		return false
	}
	if len(q.Generations) > 0 && intersection(q.Generations, u.Generations) == 0 {
		return false
	}
	return true
}

func intersection(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func toSet(values []string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, v := range values {
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}
