package engine

// reader.go turns raw workbook bytes into per-table row blocks.
//
// Two documented layouts are supported, selected by the profile:
//
//   - LayoutYearSheets: one sheet per year, the year in the sheet name
//     ("Metas 2024"), each sheet carrying the profile's single table with
//     a fixed header row.
//   - LayoutNamedTables: each expected table either fills a sheet whose
//     name matches one of the table's aliases ("Tabela 01 - Serviços"),
//     or the tables are stacked in one sheet separated by blank rows, each
//     region identified by scoring its header row against the alias sets.
//
// Sheets and regions matching no expected table are skipped, the way
// workbooks ship with summary tabs and footnotes; a missing, duplicated
// or misordered expected table is an UnexpectedLayoutError.

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
)

// maxHeaderSearchRows bounds the scan for a table's header row.
const maxHeaderSearchRows = 10

// minRegionScore is the fraction of a table's required columns a region
// header must match to be identified as that table.
const minRegionScore = 0.5

var yearRe = regexp.MustCompile(`\b(20\d{2})\b`)

// TableBlock is one detected table: its kind, the header row and the data
// rows that follow it, plus layout context such as the sheet year.
type TableBlock struct {
	Table     string
	Sheet     string
	HeaderRow int // 1-based sheet row of the header
	Header    []string
	Rows      [][]string
	Context   map[string]string
}

// ReadWorkbook parses workbook bytes and locates the profile's tables.
// It is a pure parse: no store access, no typed coercion.
func ReadWorkbook(data []byte, prof *Profile) ([]TableBlock, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &MalformedWorkbookError{Err: err}
	}
	defer f.Close()

	switch prof.Layout {
	case LayoutYearSheets:
		return readYearSheets(f, prof)
	case LayoutNamedTables:
		return readNamedTables(f, prof)
	default:
		return nil, &UnexpectedLayoutError{Profile: prof.Key, Detail: "profile has no layout"}
	}
}

// readYearSheets handles the one-sheet-per-year layout. Sheets without a
// recognizable year are skipped; a workbook with no year sheet at all is a
// layout error.
func readYearSheets(f *excelize.File, prof *Profile) ([]TableBlock, error) {
	table := prof.Tables[0]
	var blocks []TableBlock

	for _, sheet := range f.GetSheetList() {
		year := yearRe.FindString(sheet)
		if year == "" {
			continue
		}

		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, &MalformedWorkbookError{Err: fmt.Errorf("sheet %q: %w", sheet, err)}
		}

		headerRow, nearMiss := findHeaderRow(rows, table, sheet)
		if headerRow < 0 {
			if nearMiss != nil {
				return nil, nearMiss
			}
			return nil, &UnexpectedLayoutError{
				Profile: prof.Key,
				Detail:  fmt.Sprintf("sheet %q has no header row matching table %s (expected columns: %s)", sheet, table.Kind, fieldNames(table)),
			}
		}

		blocks = append(blocks, TableBlock{
			Table:     table.Kind,
			Sheet:     sheet,
			HeaderRow: headerRow + 1,
			Header:    rows[headerRow],
			Rows:      rows[headerRow+1:],
			Context:   map[string]string{"year": year},
		})
	}

	if len(blocks) == 0 {
		return nil, &UnexpectedLayoutError{Profile: prof.Key, Detail: "no sheet name carries a year"}
	}
	return blocks, nil
}

// readNamedTables handles the named-sheet / stacked-table layout. Every
// expected table must be found exactly once, in profile order.
func readNamedTables(f *excelize.File, prof *Profile) ([]TableBlock, error) {
	var blocks []TableBlock

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, &MalformedWorkbookError{Err: fmt.Errorf("sheet %q: %w", sheet, err)}
		}

		if table, ok := tableForSheetName(sheet, prof); ok {
			headerRow, nearMiss := findHeaderRow(rows, table, sheet)
			if headerRow < 0 {
				if nearMiss != nil {
					return nil, nearMiss
				}
				return nil, &UnexpectedLayoutError{
					Profile: prof.Key,
					Detail:  fmt.Sprintf("sheet %q matches table %s but has no header row (expected columns: %s)", sheet, table.Kind, fieldNames(table)),
				}
			}
			blocks = append(blocks, TableBlock{
				Table:     table.Kind,
				Sheet:     sheet,
				HeaderRow: headerRow + 1,
				Header:    rows[headerRow],
				Rows:      rows[headerRow+1:],
			})
			continue
		}

		blocks = append(blocks, splitRegions(rows, sheet, prof)...)
	}

	if err := checkTableOrder(blocks, prof); err != nil {
		return nil, err
	}
	return blocks, nil
}

// tableForSheetName matches a normalized sheet name against each table's
// alias fragments.
func tableForSheetName(sheet string, prof *Profile) (TableSpec, bool) {
	name := NormalizeKey(sheet)
	for _, table := range prof.Tables {
		for _, alias := range table.SheetAliases {
			if strings.Contains(name, NormalizeKey(alias)) {
				return table, true
			}
		}
	}
	return TableSpec{}, false
}

// splitRegions cuts a sheet into blank-row-separated regions and
// identifies each one by its header. Regions matching no expected table
// (title banners, summary tabs, footnotes) are skipped; a genuinely
// absent table surfaces later as a count mismatch in checkTableOrder.
func splitRegions(rows [][]string, sheet string, prof *Profile) []TableBlock {
	var blocks []TableBlock

	start := 0
	flush := func(end int) {
		region := rows[start:end]
		if len(region) < 2 {
			return
		}
		table, headerRow, ok := identifyRegion(region, prof)
		if !ok {
			return
		}
		blocks = append(blocks, TableBlock{
			Table:     table.Kind,
			Sheet:     sheet,
			HeaderRow: start + headerRow + 1,
			Header:    region[headerRow],
			Rows:      region[headerRow+1:],
		})
	}

	inRegion := false
	for i, row := range rows {
		if isEmptyRow(row) {
			if inRegion {
				flush(i)
				inRegion = false
			}
			continue
		}
		if !inRegion {
			start = i
			inRegion = true
		}
	}
	if inRegion {
		flush(len(rows))
	}

	return blocks
}

// identifyRegion scores the region's first rows against every expected
// table's alias set and picks the best match. A region may open with a
// title banner, so the header is searched within the first few rows.
func identifyRegion(region [][]string, prof *Profile) (TableSpec, int, bool) {
	limit := maxHeaderSearchRows
	if len(region) < limit {
		limit = len(region)
	}

	best := -1.0
	var bestTable TableSpec
	bestRow := 0

	for rowIdx := 0; rowIdx < limit; rowIdx++ {
		for _, table := range prof.Tables {
			score := headerScore(region[rowIdx], table)
			if score > best {
				best = score
				bestTable = table
				bestRow = rowIdx
			}
		}
	}

	if best < minRegionScore {
		return TableSpec{}, 0, false
	}
	return bestTable, bestRow, true
}

// headerScore is the fraction of a table's required fields found in a
// candidate header row.
func headerScore(row []string, table TableSpec) float64 {
	cells := make(map[string]bool, len(row))
	for _, c := range row {
		if k := NormalizeHeader(c); k != "" {
			cells[k] = true
		}
	}

	matches := func(spec FieldSpec) bool {
		if cells[NormalizeHeader(spec.Name)] {
			return true
		}
		for _, a := range spec.Aliases {
			if cells[NormalizeHeader(a)] {
				return true
			}
		}
		return false
	}

	required, matched := 0, 0
	for _, spec := range table.Fields {
		if !spec.Required {
			continue
		}
		required++
		if matches(spec) {
			matched++
		}
	}
	if required == 0 {
		return 0
	}
	return float64(matched) / float64(required)
}

// findHeaderRow scans the first rows of a sheet for the table's header.
// When no row maps cleanly, the near miss that matched the most columns
// is reported as a MissingColumnError, so the caller can say which
// required columns the sheet lacks instead of claiming there is no
// header at all. Rows matching no column are not near misses.
func findHeaderRow(rows [][]string, table TableSpec, sheet string) (int, *MissingColumnError) {
	limit := maxHeaderSearchRows
	if len(rows) < limit {
		limit = len(rows)
	}

	bestMatched := 0
	var nearMiss *MissingColumnError
	for i := 0; i < limit; i++ {
		if isEmptyRow(rows[i]) {
			continue
		}
		idx, err := MapHeaders(rows[i], table, sheet)
		if err == nil {
			return i, nil
		}
		var mce *MissingColumnError
		if errors.As(err, &mce) && len(idx) > bestMatched {
			bestMatched = len(idx)
			nearMiss = mce
		}
	}
	return -1, nearMiss
}

// checkTableOrder verifies each expected table was detected exactly once
// and in profile order.
func checkTableOrder(blocks []TableBlock, prof *Profile) error {
	if len(blocks) != len(prof.Tables) {
		return &UnexpectedLayoutError{
			Profile: prof.Key,
			Detail:  fmt.Sprintf("expected %d tables, found %d", len(prof.Tables), len(blocks)),
		}
	}
	for i, table := range prof.Tables {
		if blocks[i].Table != table.Kind {
			return &UnexpectedLayoutError{
				Profile: prof.Key,
				Detail:  fmt.Sprintf("table %d: expected %s, found %s (sheet %q)", i+1, table.Kind, blocks[i].Table, blocks[i].Sheet),
			}
		}
	}
	return nil
}
