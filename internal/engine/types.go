// Package engine implements the spreadsheet ingestion pipeline: workbook
// reading, header mapping, row validation, lookup resolution, dependency
// ordering and the transactional upsert of one import run.
//
// The engine is generic; everything table-specific (field lists, aliases,
// entity construction, persistence) lives in a Profile registered by the
// profile package.
package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/painelportos/ingest/internal/domain"
)

// ValueType is the expected data type of a canonical field.
type ValueType int

const (
	FieldText ValueType = iota
	FieldEnum
	FieldDate
	FieldDecimal
	FieldPercent
	FieldInt
)

// FieldSpec defines one canonical field of a table: how its header is
// recognised and how its cells are coerced and validated.
type FieldSpec struct {
	Name        string   // Canonical field name, e.g. "objeto_concessao"
	Type        ValueType
	Required    bool     // Column must exist and cells must be non-empty
	Aliases     []string // Accepted header spellings (normalized before matching)
	EnumValues  []string // Valid values for FieldEnum
	NonNegative bool     // FieldDecimal only: reject values below zero
}

// EntityKind identifies the entity type a candidate materialises into.
type EntityKind string

const (
	KindProcess    EntityKind = "process"
	KindGoal       EntityKind = "goal"
	KindIndicator  EntityKind = "indicator"
	KindConcession EntityKind = "concession"
	KindService    EntityKind = "service"
	KindTracking   EntityKind = "tracking"
)

// Layout tells the workbook reader how a profile's tables are laid out.
type Layout int

const (
	// LayoutYearSheets expects one sheet per year, the year encoded in the
	// sheet name, every sheet carrying the profile's single table.
	LayoutYearSheets Layout = iota
	// LayoutNamedTables expects each table on its own sheet (matched by
	// name) or stacked in one sheet separated by blank rows.
	LayoutNamedTables
)

// BuildFunc turns one validated row into candidate entities.
// It is pure: no store access, no lookup resolution.
type BuildFunc func(row *Row, tableCtx map[string]string) ([]*Candidate, error)

// PersistFunc writes one candidate inside the run transaction. It resolves
// lookups and parent references and upserts by natural key. A data problem
// with the row is returned as a *RowError; any other error is fatal and
// aborts the run.
type PersistFunc func(ctx context.Context, tx Tx, run *RunState, cand *Candidate) (Outcome, error)

// TableSpec describes one logical table of an import profile.
type TableSpec struct {
	Kind         string     // Table identifier, e.g. "cadastro"
	Label        string     // Display name for reports and errors
	SheetAliases []string   // Normalized sheet-name fragments that identify the table
	Fields       []FieldSpec
	Check        func(*Row) error // Optional cross-field validation
	Build        BuildFunc
}

// Profile is the declarative description of one import kind.
type Profile struct {
	Key        string      // Selector passed by the caller, e.g. "ports"
	Label      string
	Layout     Layout
	Tables     []TableSpec // In the order the workbook must present them
	Order      []EntityKind
	Persist    map[EntityKind]PersistFunc
	AutoCreate map[domain.LookupKind]bool // Lookup kinds created on first reference
}

// Table returns the spec for a table kind.
func (p *Profile) Table(kind string) (TableSpec, bool) {
	for _, t := range p.Tables {
		if t.Kind == kind {
			return t, true
		}
	}
	return TableSpec{}, false
}

// Value is a coerced cell value. The zero Value means the cell was empty.
type Value struct {
	Set  bool
	Str  string
	Dec  decimal.Decimal
	Date time.Time
	Int  int
}

// Row is a canonicalized, validated data row: every downstream component
// sees typed values keyed by canonical field name, never raw cells.
type Row struct {
	Index  int      // 1-based row number in the source sheet
	Raw    []string // Original cells, kept for the report
	Vals   map[string]Value
	Mapped FieldSet // Canonical fields whose columns the header carried
}

// Has reports whether the field has a non-empty value.
func (r *Row) Has(field string) bool { return r.Vals[field].Set }

// Str returns the text value of a field, "" when empty.
func (r *Row) Str(field string) string { return r.Vals[field].Str }

// Dec returns the decimal value of a field, zero when empty.
func (r *Row) Dec(field string) decimal.Decimal { return r.Vals[field].Dec }

// Int returns the integer value of a field, 0 when empty.
func (r *Row) Int(field string) int { return r.Vals[field].Int }

// DatePtr returns the date value, nil when empty.
func (r *Row) DatePtr(field string) *time.Time {
	v := r.Vals[field]
	if !v.Set {
		return nil
	}
	d := v.Date
	return &d
}

// IntPtr returns the integer value, nil when empty.
func (r *Row) IntPtr(field string) *int {
	v := r.Vals[field]
	if !v.Set {
		return nil
	}
	n := v.Int
	return &n
}

// DecPtr returns the decimal value, nil when empty.
func (r *Row) DecPtr(field string) *decimal.Decimal {
	v := r.Vals[field]
	if !v.Set {
		return nil
	}
	d := v.Dec
	return &d
}

// Candidate is a validated entity awaiting persistence, linked to its
// parent by batch natural key.
type Candidate struct {
	Kind      EntityKind
	Key       string // Batch natural key, e.g. "concession|tecon 10"
	ParentKey string // Batch key of the parent candidate, "" for roots
	Entity    any

	Table    string // Table kind, for the report
	RowIndex int
	Raw      []string
	Mapped   FieldSet // Copied from the source row; scopes the upsert columns
}
