// Package search implements keyword + facet member lookup over the
// MemberIndex capability. Ranking comes from the index; this layer
// derives the indexed text, applies facet filters, and paginates.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/needledetector/unit-search/internal/apperr"
	"github.com/needledetector/unit-search/internal/bundle"
	"github.com/needledetector/unit-search/internal/store"
)

// Limit bounds for member search pagination.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is one member search request.
type Params struct {
	Keyword     string
	Branches    []string
	Statuses    []string
	Generations []string
	Limit       int
	Offset      int
}

// MemberResult is the member metadata returned to callers.
type MemberResult struct {
	MemberID    string   `json:"member_id"`
	DisplayName string   `json:"display_name"`
	Alias       string   `json:"alias"`
	Aliases     []string `json:"aliases,omitempty"`
	Branch      string   `json:"branch"`
	Status      string   `json:"status"`
	Generations []string `json:"generations,omitempty"`
}

// Documents derives the per-member text blobs to index: display name,
// primary alias, and all auxiliary aliases, in bundle member order.
func Documents(b *bundle.Bundle) []store.Document {
	docs := make([]store.Document, 0, len(b.MemberOrder))
	for _, id := range b.MemberOrder {
		m := b.Members[id]
		parts := make([]string, 0, 2+len(m.Aliases))
		parts = append(parts, m.DisplayName)
		if m.PrimaryAlias != "" {
			parts = append(parts, m.PrimaryAlias)
		}
		parts = append(parts, m.Aliases...)
		docs = append(docs, store.Document{ID: id, Text: strings.Join(parts, " ")})
	}
	return docs
}

// Members runs a search against the given bundle and index. With a
// keyword the candidate list is the index's ranked ids; without one it
// is every member in bundle order. Facet filters are applied before
// pagination: branch and status require exact membership in the
// selected set, generation requires a non-empty intersection.
func Members(ctx context.Context, b *bundle.Bundle, idx store.MemberIndex, p Params) ([]MemberResult, error) {
	limit, offset, err := clampPage(p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}

	var candidates []string
	if strings.TrimSpace(p.Keyword) != "" {
		candidates, err = idx.Search(ctx, p.Keyword, len(b.MemberOrder))
		if err != nil {
			return nil, fmt.Errorf("index search: %w", err)
		}
	} else {
		candidates = b.MemberOrder
	}

	branches := toSet(p.Branches)
	statuses := toSet(p.Statuses)
	generations := toSet(p.Generations)

	filtered := make([]MemberResult, 0, len(candidates))
	for _, id := range candidates {
		m, ok := b.Members[id]
		if !ok {
			continue
		}
		if len(branches) > 0 {
			if _, ok := branches[m.Branch]; !ok {
				continue
			}
		}
		if len(statuses) > 0 {
			if _, ok := statuses[m.Status]; !ok {
				continue
			}
		}
		if len(generations) > 0 && !intersects(generations, m.Generations) {
			continue
		}
		filtered = append(filtered, MemberResult{
			MemberID:    m.ID,
			DisplayName: m.DisplayName,
			Alias:       m.PrimaryAlias,
			Aliases:     m.Aliases,
			Branch:      m.Branch,
			Status:      m.Status,
			Generations: m.Generations,
		})
	}

	if offset >= len(filtered) {
		return []MemberResult{}, nil
	}
	end := offset + limit
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[offset:end], nil
}

func clampPage(limit, offset int) (int, int, error) {
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 1 || limit > MaxLimit {
		return 0, 0, fmt.Errorf("%w: limit must be between 1 and %d, got %d", apperr.ErrInvalidArgument, MaxLimit, limit)
	}
	if offset < 0 {
		return 0, 0, fmt.Errorf("%w: offset must be non-negative, got %d", apperr.ErrInvalidArgument, offset)
	}
	return limit, offset, nil
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

func intersects(set map[string]struct{}, values []string) bool {
	for _, v := range values {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
