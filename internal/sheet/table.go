// Package sheet reads, normalizes and writes the product spreadsheet.
package sheet

import (
	"fmt"
	"strings"
)

// Canonical column names.
const (
	ColAPIRCode    = "APIR code"
	ColProductName = "Product name"
	ColPDSDate     = "PDS date"
	ColWebLink     = "Web link"

	ColScore  = "Validity Score"
	ColReason = "Validation Reason"
)

// CanonicalColumns returns the logical schema mapped onto the first four input columns.
func CanonicalColumns() []string {
	return []string{ColAPIRCode, ColProductName, ColPDSDate, ColWebLink}
}

// Table is an in-memory spreadsheet: one header row plus data rows.
//
// Every row has exactly len(Columns) cells; readers pad short rows.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Normalize renames the first four columns to the canonical names, whatever
// their original labels. Extra columns are left untouched.
func Normalize(t *Table) error {
	canonical := CanonicalColumns()
	if t == nil || len(t.Columns) < len(canonical) {
		got := 0
		if t != nil {
			got = len(t.Columns)
		}
		return fmt.Errorf("input has %d columns, want at least %d (%s)", got, len(canonical), strings.Join(canonical, ", "))
	}
	copy(t.Columns, canonical)
	return nil
}

// Index returns the position of the named column, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// EnsureColumn returns the index of the named column, appending an empty column
// when it does not exist yet.
func (t *Table) EnsureColumn(name string) int {
	if i := t.Index(name); i >= 0 {
		return i
	}
	t.Columns = append(t.Columns, name)
	for r := range t.Rows {
		t.Rows[r] = append(t.Rows[r], "")
	}
	return len(t.Columns) - 1
}

// Cell returns the trimmed value at row r / column c, or "" when out of range.
func (t *Table) Cell(r, c int) string {
	if r < 0 || r >= len(t.Rows) || c < 0 || c >= len(t.Rows[r]) {
		return ""
	}
	return strings.TrimSpace(t.Rows[r][c])
}

// Set writes a cell value in place.
func (t *Table) Set(r, c int, v string) {
	t.Rows[r][c] = v
}

func newTable(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("spreadsheet is empty: missing header row")
	}
	width := 0
	for _, rec := range records {
		width = max(width, len(rec))
	}
	// Blank or missing header cells get a positional placeholder so data
	// beyond the last labelled column is kept.
	header := make([]string, width)
	for i := range header {
		if i < len(records[0]) {
			header[i] = strings.TrimSpace(records[0][i])
		}
		if header[i] == "" {
			header[i] = fmt.Sprintf("Unnamed: %d", i)
		}
	}
	t := &Table{Columns: header}
	for _, rec := range records[1:] {
		t.Rows = append(t.Rows, pad(rec, width))
	}
	return t, nil
}

func pad(rec []string, n int) []string {
	row := make([]string, n)
	copy(row, rec)
	return row
}
