package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/needledetector/unit-search/internal/apperr"
	"github.com/needledetector/unit-search/internal/tabular"
)

// DirSource reads tables from <name>.csv files in a local directory.
// It is the offline counterpart of SheetsSource and handy in tests.
type DirSource struct {
	dir    string
	logger *slog.Logger
}

// NewDirSource creates a source reading from dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir, logger: slog.Default()}
}

// Fetch reads all known table files. A missing required file yields an
// apperr.FetchError; missing optional files are skipped.
func (d *DirSource) Fetch(ctx context.Context) (map[string]*tabular.Table, error) {
	tables := make(map[string]*tabular.Table)
	for _, name := range RequiredTables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := d.readTable(name)
		if err != nil {
			return nil, &apperr.FetchError{Name: name, Err: err}
		}
		tables[name] = t
	}
	for _, name := range OptionalTables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := d.readTable(name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			d.logger.Warn("optional table unreadable",
				slog.String("table", name),
				slog.String("error", err.Error()))
			continue
		}
		tables[name] = t
	}
	return tables, nil
}

func (d *DirSource) readTable(name string) (*tabular.Table, error) {
	path := filepath.Join(d.dir, name+".csv")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := tabular.ReadCSV(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return t, nil
}
