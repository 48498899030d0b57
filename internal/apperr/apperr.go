// Package apperr defines the typed failures shared across the
// ingestion pipeline and the query surface. Reload failures
// (SchemaError, IDConsistencyError, FetchError) abort the whole reload
// and never touch the serving snapshot; read failures (NotLoadedError,
// NotFoundError) are returned to the immediate caller.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// SchemaError reports a required table that is absent or missing
// required columns. Columns lists every missing column, not just the
// first one found.
type SchemaError struct {
	Table   string
	Columns []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("table %q missing columns: %s", e.Table, strings.Join(e.Columns, ", "))
}

// IDConsistencyError reports dangling references: ids in Table.Column
// that do not exist in the Target table. IDs is the full sorted set of
// offenders.
type IDConsistencyError struct {
	Table  string
	Column string
	Target string
	IDs    []string
}

func (e *IDConsistencyError) Error() string {
	return fmt.Sprintf("table %q column %q references unknown %s ids: %s",
		e.Table, e.Column, e.Target, strings.Join(e.IDs, ", "))
}

// FetchError reports a transport-level failure while retrieving a
// table. It is distinct from validation errors so callers can tell a
// broken upload apart from a broken download.
type FetchError struct {
	Name string // logical table name
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %q failed", e.Name)
	}
	return fmt.Sprintf("fetch %q failed: %v", e.Name, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ErrNotLoaded is returned by read operations before any snapshot has
// been published.
var ErrNotLoaded = errors.New("no snapshot loaded")

// NotFoundError reports a lookup by id that does not exist in the
// current snapshot.
type NotFoundError struct {
	Kind string // "unit" or "member"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// ErrInvalidArgument marks caller mistakes: bad pagination, an empty
// member set, an out-of-range top. Wrap it with fmt.Errorf and %w.
var ErrInvalidArgument = errors.New("invalid argument")

// IsInvalidArgument reports whether err is a caller mistake rather
// than a server-side failure.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsNotLoaded reports whether err indicates an unpublished snapshot.
func IsNotLoaded(err error) bool {
	return errors.Is(err, ErrNotLoaded)
}

// IsValidation reports whether err is a schema or id-consistency
// failure produced by the validator.
func IsValidation(err error) bool {
	var se *SchemaError
	var ie *IDConsistencyError
	return errors.As(err, &se) || errors.As(err, &ie)
}

// IsFetch reports whether err originated in the table transport.
func IsFetch(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
