package engine

// normalize.go provides the text normalization shared by header matching
// and natural-key comparison. Workbooks are human-authored: headers and
// reference values arrive with inconsistent casing, stray whitespace and
// missing or extra accents, and all of those spellings must converge on
// one canonical form.

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldDiacritics decomposes to NFD, drops combining marks and recomposes,
// turning "Situação" into "Situacao".
var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

var spaceReplacer = strings.NewReplacer(" ", " ", "\t", " ", "\n", " ", "\r", " ")

// CleanCell trims a raw cell and removes common spreadsheet artifacts:
// surrounding quotes, Excel formula prefixes (="value") and non-breaking
// spaces.
func CleanCell(s string) string {
	s = spaceReplacer.Replace(s)
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// NormalizeKey canonicalizes a value for natural-key and alias matching:
// clean, lowercase, diacritics folded, inner whitespace collapsed.
// "  Porto de  SANTOS " and "porto de santos" normalize identically.
func NormalizeKey(s string) string {
	s = strings.ToLower(CleanCell(s))
	if folded, _, err := transform.String(foldDiacritics, s); err == nil {
		s = folded
	}
	// "Nº Processo" style ordinal markers vanish with the dot notation
	s = strings.ReplaceAll(s, "º", "")
	s = strings.ReplaceAll(s, "ª", "")
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeHeader canonicalizes a header cell for alias lookup.
// Punctuation that varies between workbook revisions (dots, colons,
// parentheses) is stripped so "Obj. de Concessão" matches "obj de
// concessao".
func NormalizeHeader(s string) string {
	s = NormalizeKey(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '%':
			b.WriteRune(r)
		case r == ' ', r == '_', r == '-', r == '/':
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// isEmptyRow reports whether every cell of a row is blank.
func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
