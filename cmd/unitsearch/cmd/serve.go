package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/needledetector/unit-search/internal/config"
	"github.com/needledetector/unit-search/internal/ingest"
	"github.com/needledetector/unit-search/internal/logging"
	"github.com/needledetector/unit-search/internal/server"
	"github.com/needledetector/unit-search/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

Loads tables from the configured source, then serves:
  GET  /api/members/search   keyword + facet member search
  GET  /api/members/{id}     member lookup
  GET  /api/units/{id}       unit lookup
  GET  /api/similarity       member similarity scores
  POST /api/match            unit matching by member subset
  POST /api/reload           refetch and republish
  GET  /healthz              readiness

The server keeps serving the last good snapshot while reloads run;
a failed reload never disturbs live queries.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Server.LogLevel
	logCfg.FilePath = cfg.Server.LogFile
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return err
	}
	defer cleanup()
	slog.SetDefault(logger)

	m, err := newManager(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initial load. A failure is logged, not fatal: the server comes
	// up unready and a later reload can succeed.
	if _, err := m.Reload(ctx); err != nil {
		logger.Warn("initial load failed, serving unready",
			slog.String("error", err.Error()))
	}

	g, ctx := errgroup.WithContext(ctx)

	reload := func(ctx context.Context) {
		if _, err := m.Reload(ctx); err != nil {
			logger.Warn("reload failed", slog.String("error", err.Error()))
		}
	}

	switch {
	case cfg.Source.Kind == config.SourceDir && cfg.Source.Watch:
		w := watcher.New(cfg.Source.Dir, reload, watcher.WithLogger(logger))
		g.Go(func() error {
			err := w.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	case cfg.Source.Kind == config.SourceSheets && cfg.Source.PollInterval > 0:
		probe := ingest.NewSheetsSource(cfg.Source.SpreadsheetID).ProbeURL()
		p := ingest.NewPoller(probe, cfg.Source.PollInterval, reload,
			ingest.WithPollerLogger(logger))
		g.Go(func() error {
			err := p.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	srv := server.New(m, logger)
	g.Go(func() error {
		err := srv.ListenAndServe(ctx, cfg.Server.Addr)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	return g.Wait()
}
