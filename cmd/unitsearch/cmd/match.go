package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/needledetector/unit-search/internal/match"
	"github.com/needledetector/unit-search/internal/output"
)

type matchOptions struct {
	branches    []string
	statuses    []string
	generations []string
	format      string
	limit       int
}

func newMatchCmd() *cobra.Command {
	var opts matchOptions

	cmd := &cobra.Command{
		Use:   "match <member-id>...",
		Short: "Find units matching a set of members",
		Long: `Rank units by overlap with the given member set using Jaccard
similarity. Units sharing no member with the query are omitted.

Examples:
  unitsearch match m001 m002
  unitsearch match m001 --branch A --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			m, err := loadOnce(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()

			results, err := m.MatchUnits(match.NewQuery(args, opts.branches, opts.statuses, opts.generations))
			if err != nil {
				return err
			}
			if opts.limit > 0 && len(results) > opts.limit {
				results = results[:opts.limit]
			}

			out := output.New(cmd.OutOrStdout())
			if opts.format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				type row struct {
					UnitID       string  `json:"unit_id"`
					Name         string  `json:"name"`
					Score        float64 `json:"score"`
					Intersection int     `json:"intersection"`
				}
				rows := make([]row, 0, len(results))
				for _, r := range results {
					rows = append(rows, row{r.Unit.ID, r.Unit.Name, r.Score, r.Intersection})
				}
				return enc.Encode(rows)
			}

			if len(results) == 0 {
				out.Dim("no units share a member with the query")
				return nil
			}
			out.Header(fmt.Sprintf("%d units match [%s]", len(results), strings.Join(args, ", ")))
			for i, r := range results {
				out.Linef("%d. %s (%s)  score %.3f, %d shared",
					i+1, r.Unit.Name, r.Unit.ID, r.Score, r.Intersection)
				out.Dimf("   members: %s", strings.Join(r.Unit.MemberNames, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&opts.branches, "branch", nil, "Filter by branch (repeatable)")
	cmd.Flags().StringSliceVar(&opts.statuses, "status", nil, "Filter by status (repeatable)")
	cmd.Flags().StringSliceVar(&opts.generations, "generation", nil, "Filter by generation (repeatable)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (0 = all)")
	return cmd
}
