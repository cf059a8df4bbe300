package engine

// validate.go provides header mapping and row-level validation.
//
// Validation happens at two levels:
//  1. Header mapping: each header cell is normalized and matched against
//     the table's alias sets; unmatched required columns fail the table.
//  2. Row validation: each mapped cell is coerced against its FieldSpec,
//     then the table's cross-field check runs on the typed row.
//
// A failed row is never an error: it becomes a rejection in the report and
// the rest of the table proceeds.

import (
	"fmt"
	"strings"
)

// HeaderIndex maps canonical field names to their column position.
type HeaderIndex map[string]int

// MapHeaders matches a table's actual header row against the profile's
// column aliases. Unmatched optional columns are dropped; unrecognized
// extra columns are ignored; unmatched required columns fail the whole
// table with a MissingColumnError. On failure the partial index of the
// columns that did match is still returned, so callers can tell a near
// miss from a row that is not a header at all.
func MapHeaders(header []string, table TableSpec, sheet string) (HeaderIndex, error) {
	byAlias := make(map[string]string) // normalized alias -> canonical name
	for _, spec := range table.Fields {
		byAlias[NormalizeHeader(spec.Name)] = spec.Name
		for _, a := range spec.Aliases {
			byAlias[NormalizeHeader(a)] = spec.Name
		}
	}

	idx := make(HeaderIndex, len(table.Fields))
	for pos, cell := range header {
		key := NormalizeHeader(cell)
		if key == "" {
			continue
		}
		name, ok := byAlias[key]
		if !ok {
			continue
		}
		if _, dup := idx[name]; !dup {
			idx[name] = pos
		}
	}

	var missing []string
	for _, spec := range table.Fields {
		if spec.Required {
			if _, ok := idx[spec.Name]; !ok {
				missing = append(missing, spec.Name)
			}
		}
	}
	if len(missing) > 0 {
		return idx, &MissingColumnError{Table: table.Kind, Sheet: sheet, Columns: missing}
	}

	return idx, nil
}

// RowValidator validates and canonicalizes data rows of one table.
type RowValidator struct {
	table  TableSpec
	idx    HeaderIndex
	mapped FieldSet
}

// NewRowValidator creates a validator for a mapped table.
func NewRowValidator(table TableSpec, idx HeaderIndex) *RowValidator {
	mapped := make(FieldSet, len(idx))
	for name := range idx {
		mapped[name] = true
	}
	return &RowValidator{table: table, idx: idx, mapped: mapped}
}

// ValidateRow coerces one raw row into a typed Row, or rejects it.
// rowIndex is the 1-based row number in the source sheet, kept for the
// report.
func (v *RowValidator) ValidateRow(rowIndex int, raw []string) (*Row, *RowError) {
	row := &Row{
		Index:  rowIndex,
		Raw:    raw,
		Vals:   make(map[string]Value, len(v.table.Fields)),
		Mapped: v.mapped,
	}

	for _, spec := range v.table.Fields {
		pos, ok := v.idx[spec.Name]
		var cell string
		if ok && pos < len(raw) {
			cell = CleanCell(raw[pos])
		}

		if cell == "" {
			if spec.Required {
				return nil, &RowError{Reason: ReasonMissingField, Detail: spec.Name}
			}
			continue
		}

		val, rerr := CoerceValue(cell, spec)
		if rerr != nil {
			return nil, rerr
		}
		row.Vals[spec.Name] = val
	}

	if v.table.Check != nil {
		if err := v.table.Check(row); err != nil {
			if re := AsRowError(err); re != nil {
				return nil, re
			}
			return nil, &RowError{Reason: ReasonInvalidValue, Detail: err.Error()}
		}
	}

	return row, nil
}

// CheckDateOrder is a cross-field check asserting start <= end when both
// dates are present.
func CheckDateOrder(startField, endField string) func(*Row) error {
	return func(r *Row) error {
		start, end := r.DatePtr(startField), r.DatePtr(endField)
		if start != nil && end != nil && start.After(*end) {
			return &RowError{
				Reason: ReasonDateOrder,
				Detail: fmt.Sprintf("%s %s after %s %s",
					startField, start.Format("2006-01-02"), endField, end.Format("2006-01-02")),
			}
		}
		return nil
	}
}

// fieldNames returns the canonical field names of a table, for error
// context.
func fieldNames(table TableSpec) string {
	names := make([]string, len(table.Fields))
	for i, f := range table.Fields {
		names[i] = f.Name
	}
	return strings.Join(names, ", ")
}
