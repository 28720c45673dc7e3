package sheet

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format identifies a spreadsheet encoding.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// FormatFromPath picks the format from the file extension. Anything that is not
// .csv is treated as an Excel workbook.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return FormatCSV
	}
	return FormatXLSX
}

// ReadFile loads the first sheet of an .xlsx workbook, or a .csv file.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	return Read(f, FormatFromPath(path))
}

// Read decodes a table in the given format.
func Read(r io.Reader, format Format) (*Table, error) {
	if format == FormatCSV {
		return ReadCSV(r)
	}
	return ReadXLSX(r)
}

// WriteFile writes the table to path in the format implied by its extension.
func WriteFile(path string, t *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	if err := Write(f, t, FormatFromPath(path)); err != nil {
		return err
	}
	return f.Close()
}

// Write encodes a table in the given format.
func Write(w io.Writer, t *Table, format Format) error {
	if format == FormatCSV {
		return WriteCSV(w, t)
	}
	return WriteXLSX(w, t)
}

// ReadXLSX reads the first worksheet of a workbook. The first row is the header.
func ReadXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return newTable(records)
}

// WriteXLSX writes the table into a single-sheet workbook. Cells of the
// Validity Score column are written as numbers.
func WriteXLSX(w io.Writer, t *Table) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()
	sheetName := f.GetSheetName(0)

	if err := writeRow(f, sheetName, 1, toCells(t.Columns, -1)); err != nil {
		return err
	}
	scoreIdx := t.Index(ColScore)
	for i, row := range t.Rows {
		if err := writeRow(f, sheetName, i+2, toCells(row, scoreIdx)); err != nil {
			return err
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheetName string, rowNum int, cells []any) error {
	ref, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheetName, ref, &cells); err != nil {
		return fmt.Errorf("write row %d: %w", rowNum, err)
	}
	return nil
}

func toCells(row []string, numericIdx int) []any {
	cells := make([]any, len(row))
	for i, v := range row {
		if i == numericIdx {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				cells[i] = n
				continue
			}
		}
		cells[i] = v
	}
	return cells
}

// ReadCSV reads a CSV table. Every row is padded to the widest record.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return newTable(records)
}

// WriteCSV writes the header followed by every row.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	for _, r := range t.Rows {
		if err := cw.Write(r); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
