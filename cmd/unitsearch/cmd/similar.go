package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/needledetector/unit-search/internal/output"
)

func newSimilarCmd() *cobra.Command {
	var top int
	var format string

	cmd := &cobra.Command{
		Use:   "similar <member-id>",
		Short: "Find members with similar unit participation",
		Long: `Rank members by cosine similarity of unit participation. Members
who share low-weight slots in the same units score highest.

Examples:
  unitsearch similar m001
  unitsearch similar m001 --top 10 --format json`,
		Args: cobra.ExactArgs(1),
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

			scores, err := m.SimilarMembers(args[0], top)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(scores)
			}

			if len(scores) == 0 {
				out.Dim("no members share a unit with " + args[0])
				return nil
			}
			out.Header(fmt.Sprintf("members similar to %s", args[0]))
			for i, s := range scores {
				name := s.MemberID
				if mem, err := m.Member(s.MemberID); err == nil {
					name = fmt.Sprintf("%s (%s)", mem.DisplayName, mem.ID)
				}
				out.Linef("%d. %s  %.3f", i+1, name, s.Score)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&top, "top", "n", 5, "Number of similar members to return")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	return cmd
}
