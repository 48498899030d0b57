// Package feature builds the member-by-unit co-membership matrix and
// answers member similarity queries against it. The matrix is a
// derived artifact of one bundle: rebuilt on every publish, never
// mutated afterwards.
package feature

import (
	"math"
	"sort"

	"github.com/needledetector/unit-search/internal/bundle"
)

// Matrix is a dense member-row x unit-column matrix with L2-normalized
// rows. Row and column addressing is fixed at build time: ids are
// sorted lexicographically and the index maps travel with the matrix.
type Matrix struct {
	MemberIDs []string
	UnitIDs   []string
	rowIndex  map[string]int
	rows      [][]float64
}

// Build creates the matrix from the normalized membership table. Each
// edge contributes 1/(1+weight), so lower weight means a larger
// contribution and the sentinel weight is near zero. Rows of members
// with no memberships stay zero vectors. Empty input yields an empty
// matrix.
func Build(memberships []bundle.Membership) *Matrix {
	memberIDs := sortedUnique(memberships, func(e bundle.Membership) string { return e.MemberID })
	unitIDs := sortedUnique(memberships, func(e bundle.Membership) string { return e.UnitID })

	m := &Matrix{
		MemberIDs: memberIDs,
		UnitIDs:   unitIDs,
		rowIndex:  make(map[string]int, len(memberIDs)),
		rows:      make([][]float64, len(memberIDs)),
	}
	colIndex := make(map[string]int, len(unitIDs))
	for i, id := range memberIDs {
		m.rowIndex[id] = i
		m.rows[i] = make([]float64, len(unitIDs))
	}
	for j, id := range unitIDs {
		colIndex[id] = j
	}

	for _, e := range memberships {
		m.rows[m.rowIndex[e.MemberID]][colIndex[e.UnitID]] = 1.0 / (1.0 + e.Weight)
	}

	for _, row := range m.rows {
		normalizeL2(row)
	}
	return m
}

// Row returns the normalized vector for a member id.
func (m *Matrix) Row(memberID string) ([]float64, bool) {
	i, ok := m.rowIndex[memberID]
	if !ok {
		return nil, false
	}
	return m.rows[i], true
}

// Empty reports whether the matrix holds no rows.
func (m *Matrix) Empty() bool {
	return len(m.rows) == 0
}

// normalizeL2 scales row to unit length in place. All-zero rows are
// left untouched rather than divided by zero.
func normalizeL2(row []float64) {
	var sum float64
	for _, v := range row {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range row {
		row[i] *= inv
	}
}

func sortedUnique(memberships []bundle.Membership, key func(bundle.Membership) string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, e := range memberships {
		k := key(e)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
