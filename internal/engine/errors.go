package engine

// errors.go defines the import error taxonomy.
//
// Fatal errors abort the whole run before or during commit: the caller gets
// an error and nothing is persisted. Row-level problems never surface as
// errors from Run; they become rejection entries in the report. PersistFuncs
// signal a row-level problem with *RowError so the engine can tell the two
// apart.

import (
	"errors"
	"fmt"
	"strings"
)

// MalformedWorkbookError indicates the payload could not be parsed as a
// spreadsheet at all.
type MalformedWorkbookError struct {
	Err error
}

func (e *MalformedWorkbookError) Error() string {
	return fmt.Sprintf("malformed workbook: %v", e.Err)
}

func (e *MalformedWorkbookError) Unwrap() error { return e.Err }

// UnexpectedLayoutError indicates the workbook parsed but its tables do not
// match the profile's expected number, order or shape.
type UnexpectedLayoutError struct {
	Profile string
	Detail  string
}

func (e *UnexpectedLayoutError) Error() string {
	return fmt.Sprintf("unexpected workbook layout for profile %s: %s", e.Profile, e.Detail)
}

// MissingColumnError indicates a required column of a table could not be
// matched against any header cell.
type MissingColumnError struct {
	Table   string
	Sheet   string
	Columns []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("table %s (sheet %q): missing required columns: %s",
		e.Table, e.Sheet, strings.Join(e.Columns, ", "))
}

// Rejection reason codes recorded in the report.
const (
	ReasonInvalidValue  = "invalid value"
	ReasonMissingField  = "missing required field"
	ReasonOutOfRange    = "out of range"
	ReasonDateOrder     = "start date after end date"
	ReasonUnknownLookup = "unknown reference value"
	ReasonOrphanRow     = "parent not found"
	ReasonCapexMismatch = "capex amount inconsistent with percent"
)

// RowError marks a recoverable, row-scoped problem found during
// persistence. The offending row is excluded and reported; the run
// continues.
type RowError struct {
	Reason string
	Detail string
}

func (e *RowError) Error() string {
	if e.Detail == "" {
		return e.Reason
	}
	return e.Reason + ": " + e.Detail
}

// OrphanRowError builds the RowError for a child row whose parent natural
// key resolves to nothing in the batch or the store.
func OrphanRowError(parent string) *RowError {
	return &RowError{Reason: ReasonOrphanRow, Detail: parent}
}

// AsRowError returns the *RowError in err's chain, or nil.
func AsRowError(err error) *RowError {
	var re *RowError
	if errors.As(err, &re) {
		return re
	}
	return nil
}
