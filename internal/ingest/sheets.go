package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/needledetector/unit-search/internal/apperr"
	"github.com/needledetector/unit-search/internal/tabular"
)

const (
	sheetsExportBase    = "https://docs.google.com/spreadsheets/d"
	defaultFetchTimeout = 30 * time.Second
)

// SheetsSource fetches worksheets from a published Google spreadsheet
// via the CSV export endpoint. Each logical table maps to a worksheet
// of the same name.
type SheetsSource struct {
	spreadsheetID string
	base          string
	client        *http.Client
	logger        *slog.Logger
}

// NewSheetsSource creates a source for the given spreadsheet id.
func NewSheetsSource(spreadsheetID string, opts ...SheetsOption) *SheetsSource {
	s := &SheetsSource{
		spreadsheetID: spreadsheetID,
		client:        &http.Client{Timeout: defaultFetchTimeout},
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SheetsOption configures a SheetsSource.
type SheetsOption func(*SheetsSource)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) SheetsOption {
	return func(s *SheetsSource) { s.client = c }
}

// WithSheetsLogger sets the structured logger.
func WithSheetsLogger(l *slog.Logger) SheetsOption {
	return func(s *SheetsSource) { s.logger = l }
}

// WithBaseURL points the source at a different export host, for tests.
func WithBaseURL(base string) SheetsOption {
	return func(s *SheetsSource) { s.base = base }
}

// Fetch downloads every known worksheet concurrently. A failure on a
// required table aborts the fetch with an apperr.FetchError; a missing
// optional table is tolerated and logged.
func (s *SheetsSource) Fetch(ctx context.Context) (map[string]*tabular.Table, error) {
	var mu sync.Mutex
	tables := make(map[string]*tabular.Table)

	g, ctx := errgroup.WithContext(ctx)
	fetchOne := func(name string, required bool) {
		g.Go(func() error {
			t, err := s.fetchSheet(ctx, name)
			if err != nil {
				if required {
					return &apperr.FetchError{Name: name, Err: err}
				}
				s.logger.Warn("optional table unavailable",
					slog.String("table", name),
					slog.String("error", err.Error()))
				return nil
			}
			mu.Lock()
			tables[name] = t
			mu.Unlock()
			return nil
		})
	}
	for _, name := range RequiredTables {
		fetchOne(name, true)
	}
	for _, name := range OptionalTables {
		fetchOne(name, false)
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tables, nil
}

func (s *SheetsSource) fetchSheet(ctx context.Context, name string) (*tabular.Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.exportURL(name), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return tabular.ReadCSV(string(data))
}

// ProbeURL returns the export URL of the members worksheet, used by
// the change poller as a cheap freshness sentinel.
func (s *SheetsSource) ProbeURL() string {
	return s.exportURL(TableMembers)
}

func (s *SheetsSource) exportURL(sheet string) string {
	base := s.base
	if base == "" {
		base = sheetsExportBase
	}
	return fmt.Sprintf("%s/%s/gviz/tq?tqx=out:csv&sheet=%s",
		base, s.spreadsheetID, url.QueryEscape(sheet))
}
