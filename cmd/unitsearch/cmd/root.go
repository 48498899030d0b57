// Package cmd provides the CLI commands for unit-search.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/needledetector/unit-search/internal/config"
	"github.com/needledetector/unit-search/internal/ingest"
	"github.com/needledetector/unit-search/internal/snapshot"
	"github.com/needledetector/unit-search/internal/store"
	"github.com/needledetector/unit-search/pkg/version"
)

var (
	configPath string
	logLevel   string
)

// NewRootCmd creates the root command for the unitsearch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unitsearch",
		Short: "Search units and members of an idol group roster",
		Long: `unitsearch ingests member and unit tables, validates them, and
serves three kinds of lookups: unit matching by member subset,
member similarity by shared unit participation, and keyword member
search with facet filters.

Run 'unitsearch serve' to start the HTTP API, or use the one-shot
commands (match, search, similar) against a local data directory.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("unitsearch version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "unit-search.yaml", "Path to config file")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newMatchCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newSimilarCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		root.PrintErrln("Error:", err.Error())
		return err
	}
	return nil
}

// loadConfig loads the effective configuration with flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	return cfg, nil
}

// newSource builds the configured table source.
func newSource(cfg *config.Config) (ingest.TableSource, error) {
	switch cfg.Source.Kind {
	case config.SourceSheets:
		return ingest.NewSheetsSource(cfg.Source.SpreadsheetID), nil
	case config.SourceDir:
		return ingest.NewDirSource(cfg.Source.Dir), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}
}

// newManager wires the index, optional archive, and table source into
// a snapshot manager. The caller owns Close.
func newManager(cfg *config.Config) (*snapshot.Manager, error) {
	idx, err := store.NewMemberIndex(cfg.Index.Backend, cfg.Index.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open member index: %w", err)
	}

	src, err := newSource(cfg)
	if err != nil {
		_ = idx.Close()
		return nil, err
	}

	opts := []snapshot.Option{snapshot.WithSource(src)}
	if cfg.Archive.Enabled {
		arch, err := store.NewArchive(cfg.Archive.Path)
		if err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("open archive: %w", err)
		}
		opts = append(opts, snapshot.WithArchive(arch))
	}
	return snapshot.NewManager(idx, opts...), nil
}

// loadOnce builds a manager and performs one reload, for the one-shot
// commands.
func loadOnce(ctx context.Context, cfg *config.Config) (*snapshot.Manager, error) {
	m, err := newManager(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := m.Reload(ctx); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}
