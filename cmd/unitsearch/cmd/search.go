package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/needledetector/unit-search/internal/output"
	"github.com/needledetector/unit-search/internal/search"
)

type searchOptions struct {
	branches    []string
	statuses    []string
	generations []string
	format      string
	limit       int
	offset      int
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search [keyword]",
		Short: "Search members by keyword and facets",
		Long: `Search members by keyword over names and aliases, with optional
facet filters. Without a keyword, lists members in table order.

Examples:
  unitsearch search alice
  unitsearch search --branch A --status active
  unitsearch search carol --generation gen1 --format json`,
		Args: cobra.MaximumNArgs(1),
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

			p := search.Params{
				Branches:    opts.branches,
				Statuses:    opts.statuses,
				Generations: opts.generations,
				Limit:       opts.limit,
				Offset:      opts.offset,
			}
			if len(args) > 0 {
				p.Keyword = args[0]
			}

			results, err := m.SearchMembers(cmd.Context(), p)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if opts.format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			if len(results) == 0 {
				out.Dim("no members found")
				return nil
			}
			out.Header(fmt.Sprintf("%d members", len(results)))
			for _, r := range results {
				line := fmt.Sprintf("%s (%s)", r.DisplayName, r.MemberID)
				if r.Alias != "" {
					line += " aka " + r.Alias
				}
				out.Line(line)
				out.Dimf("   %s / %s / %s", r.Branch, r.Status, strings.Join(r.Generations, ","))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&opts.branches, "branch", nil, "Filter by branch (repeatable)")
	cmd.Flags().StringSliceVar(&opts.statuses, "status", nil, "Filter by status (repeatable)")
	cmd.Flags().StringSliceVar(&opts.generations, "generation", nil, "Filter by generation (repeatable)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "Skip the first N results")
	return cmd
}
