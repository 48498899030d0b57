package feature

import "sort"

// Score is one member similarity result.
type Score struct {
	MemberID string  `json:"member_id"`
	Score    float64 `json:"score"`
}

// TopSimilar returns the up-to-top members most similar to memberID by
// cosine similarity. Rows are unit length, so the dot product is the
// cosine. The query member is excluded from its own results. An
// unknown member id or an empty matrix yields an empty slice, not an
// error. Ties keep row order, which is lexicographic by member id.
func TopSimilar(m *Matrix, memberID string, top int) []Score {
	if m == nil || m.Empty() || top <= 0 {
		return nil
	}
	target, ok := m.Row(memberID)
	if !ok {
		return nil
	}

	scores := make([]Score, 0, len(m.MemberIDs)-1)
	for i, id := range m.MemberIDs {
		if id == memberID {
			continue
		}
		scores = append(scores, Score{MemberID: id, Score: dot(target, m.rows[i])})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})
	if len(scores) > top {
		scores = scores[:top]
	}
	return scores
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
