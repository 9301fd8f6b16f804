package history

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Export formats.
const (
	FormatXLSX = "xlsx"
	FormatJSON = "json"
)

const (
	sheetName  = "History"
	timeLayout = "15:04:05"
)

var xlsxHeaders = []string{"ID", "Date", "Time", "Model", "Status", "Document", "Fields"}

// Export writes records to w in the given format.
func Export(w io.Writer, format string, records []Record) error {
	switch strings.ToLower(format) {
	case FormatXLSX:
		return ExportXLSX(w, records)
	case FormatJSON:
		return ExportJSON(w, records)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// ExportXLSX writes a workbook with a single "History" sheet.
func ExportXLSX(w io.Writer, records []Record) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}

	for i, h := range xlsxHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}

	for i, r := range records {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheetName, cell, v)
		}

		write(1, r.ID)
		write(2, r.CreatedAt.UTC().Format(DateLayout))
		write(3, r.CreatedAt.UTC().Format(timeLayout))
		write(4, r.ModelID)
		write(5, string(r.Status))
		write(6, r.DocumentRef)
		write(7, summarizeFields(r))
	}

	_ = f.SetColWidth(sheetName, "A", "A", 38)
	_ = f.SetColWidth(sheetName, "B", "C", 12)
	_ = f.SetColWidth(sheetName, "D", "E", 14)
	_ = f.SetColWidth(sheetName, "F", "F", 28)
	_ = f.SetColWidth(sheetName, "G", "G", 80)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

// ExportJSON writes records as an indented JSON array.
func ExportJSON(w io.Writer, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("json write: %w", err)
	}
	return nil
}

// summarizeFields renders fields as "key: value" pairs sorted by key, or the
// error message for failed extractions.
func summarizeFields(r Record) string {
	if len(r.Fields) == 0 {
		return r.ErrorMessage
	}
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + r.Fields[k]
	}
	return strings.Join(parts, "; ")
}
