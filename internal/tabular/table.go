// Package tabular provides the row-oriented table representation that
// the ingestion pipeline consumes. Tables arrive as CSV exports (one
// per logical sheet) and are decoded into string cells; all numeric
// coercion happens later, during normalization.
package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strings"
)

// Row is a single record keyed by column name. Cells are raw strings;
// missing cells read as "".
type Row map[string]string

// Get returns the raw cell value for col, or "" if absent.
func (r Row) Get(col string) string {
	return r[col]
}

// Table is a named set of rows sharing one header.
type Table struct {
	Columns []string
	Rows    []Row
}

// HasColumn reports whether the table header contains col.
func (t *Table) HasColumn(col string) bool {
	return slices.Contains(t.Columns, col)
}

// Empty returns a table with the given header and no rows. Used for
// optional tables that were not supplied.
func Empty(columns ...string) *Table {
	return &Table{Columns: columns, Rows: []Row{}}
}

// ReadCSV decodes a CSV payload into a Table. Header cells are
// whitespace-trimmed. If the payload decodes to a single column whose
// name contains a tab, it is re-read as TSV (some sheet exports come
// back tab-separated despite the CSV content type).
func ReadCSV(data string) (*Table, error) {
	t, err := readDelimited(data, ',')
	if err != nil {
		return nil, err
	}
	if len(t.Columns) == 1 && strings.Contains(t.Columns[0], "\t") {
		return readDelimited(data, '\t')
	}
	return t, nil
}

func readDelimited(data string, sep rune) (*Table, error) {
	r := csv.NewReader(strings.NewReader(data))
	r.Comma = sep
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return &Table{Rows: []Row{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	columns := make([]string, len(header))
	for i, c := range header {
		columns[i] = strings.TrimSpace(c)
	}

	t := &Table{Columns: columns, Rows: []Row{}}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(t.Rows)+2, err)
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
