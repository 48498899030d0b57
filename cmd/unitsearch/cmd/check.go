package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/needledetector/unit-search/internal/apperr"
	"github.com/needledetector/unit-search/internal/ingest"
	"github.com/needledetector/unit-search/internal/output"
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Fetch and validate the configured tables",
		Long: `Fetch tables from the configured source and run schema and id
consistency validation without starting a server. Exits non-zero if
any table is malformed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())

			src, err := newSource(cfg)
			if err != nil {
				return err
			}
			raw, err := src.Fetch(cmd.Context())
			if err != nil {
				out.Error("fetch failed")
				return err
			}

			b, err := ingest.Build(raw)
			if err != nil {
				if apperr.IsValidation(err) {
					out.Error("validation failed")
					out.Line("  " + err.Error())
					return fmt.Errorf("tables are invalid")
				}
				return err
			}

			out.Success("tables are valid")
			out.Table([][2]string{
				{"members", fmt.Sprintf("%d", len(b.Members))},
				{"units", fmt.Sprintf("%d", len(b.Units))},
				{"memberships", fmt.Sprintf("%d", len(b.Memberships))},
				{"branches", fmt.Sprintf("%d", len(b.Branches))},
				{"generations", fmt.Sprintf("%d", len(b.Generations))},
			})
			return nil
		},
	}
	return cmd
}
