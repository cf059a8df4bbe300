package engine

// convert.go coerces raw workbook cells into typed values.
//
// The accepted formats handle the messy reality of the source workbooks:
//   - Brazilian decimal notation ("1.234,56") next to plain notation
//   - "R$" currency markers and accounting parentheses for negatives
//   - Brazilian day-first dates next to ISO dates
//
// Anything outside these formats is a coercion failure, which rejects the
// row rather than guessing.

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Accepted date layouts. Day-first is what the workbooks actually carry;
// ISO shows up when a sheet was exported from the panel itself.
var dateLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"2006-01-02",
}

var plainNumberRe = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// ParseDate parses a cell in one of the accepted date layouts.
func ParseDate(s string) (time.Time, error) {
	s = CleanCell(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// ParseDecimal parses a numeric cell, tolerating currency markers,
// Brazilian thousands/decimal separators and accounting negatives.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = CleanCell(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty numeric cell")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")

	// "1.234,56" is Brazilian notation; "1,234.56" is anglo notation;
	// a lone comma is a decimal comma.
	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasComma:
		s = strings.Replace(s, ",", ".", 1)
	}

	if negative {
		s = "-" + s
	}

	if !plainNumberRe.MatchString(s) {
		return decimal.Zero, fmt.Errorf("unrecognized number %q", s)
	}
	return decimal.NewFromString(s)
}

// CoerceValue coerces one cleaned, non-empty cell against its field spec.
// Failures come back as *RowError so coercion problems ("invalid value")
// and range violations ("out of range") keep distinct reason codes.
func CoerceValue(raw string, spec FieldSpec) (Value, *RowError) {
	invalid := func(err error) *RowError {
		return &RowError{Reason: ReasonInvalidValue, Detail: fmt.Sprintf("%s: %v", spec.Name, err)}
	}

	switch spec.Type {
	case FieldDate:
		t, err := ParseDate(raw)
		if err != nil {
			return Value{}, invalid(err)
		}
		return Value{Set: true, Date: t, Str: raw}, nil

	case FieldDecimal, FieldPercent:
		d, err := ParseDecimal(raw)
		if err != nil {
			return Value{}, invalid(err)
		}
		if spec.Type == FieldPercent && (d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100))) {
			return Value{}, &RowError{Reason: ReasonOutOfRange, Detail: fmt.Sprintf("%s: %s outside 0-100", spec.Name, d)}
		}
		if spec.NonNegative && d.IsNegative() {
			return Value{}, &RowError{Reason: ReasonOutOfRange, Detail: fmt.Sprintf("%s: negative value %s", spec.Name, d)}
		}
		return Value{Set: true, Dec: d, Str: raw}, nil

	case FieldInt:
		d, err := ParseDecimal(raw)
		if err != nil {
			return Value{}, invalid(err)
		}
		if !d.IsInteger() {
			return Value{}, invalid(fmt.Errorf("expected integer, got %q", raw))
		}
		n, err := strconv.Atoi(d.String())
		if err != nil {
			return Value{}, invalid(err)
		}
		return Value{Set: true, Int: n, Dec: d, Str: raw}, nil

	case FieldEnum:
		for _, ev := range spec.EnumValues {
			if NormalizeKey(ev) == NormalizeKey(raw) {
				return Value{Set: true, Str: ev}, nil
			}
		}
		return Value{}, invalid(fmt.Errorf("value %q must be one of: %s", raw, strings.Join(spec.EnumValues, ", ")))

	default:
		return Value{Set: true, Str: raw}, nil
	}
}
