package bulkimport

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	internal "github.com/frahmantamala/cardspend/internal"
	"github.com/frahmantamala/cardspend/internal/normalize"
)

// ReadFile parses an uploaded .xlsx or .csv into rows keyed by the
// header line. The first row is always headers; entirely empty rows are
// skipped.
func ReadFile(path string) ([]normalize.Row, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSV(path)
	default:
		return readExcel(path)
	}
}

func readExcel(path string) ([]normalize.Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, internal.NewValidationError("could not read spreadsheet", internal.ErrCodeImportBadFormat).WithCause(err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	// Raw values keep numeric date serials numeric instead of rendering
	// them through the cell style.
	raw, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, internal.NewValidationError("could not read spreadsheet", internal.ErrCodeImportBadFormat).WithCause(err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	headers := make([]string, len(raw[0]))
	for i, h := range raw[0] {
		headers[i] = strings.TrimSpace(h)
	}

	return buildRows(headers, raw[1:]), nil
}

func readCSV(path string) ([]normalize.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, internal.NewValidationError("could not read file", internal.ErrCodeImportBadFormat).WithCause(err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, internal.NewValidationError("could not parse CSV", internal.ErrCodeImportBadFormat).WithCause(err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}

	return buildRows(headers, records[1:]), nil
}

func buildRows(headers []string, records [][]string) []normalize.Row {
	rows := make([]normalize.Row, 0, len(records))
	for _, record := range records {
		row := make(normalize.Row, len(headers))
		for col, header := range headers {
			if header == "" || col >= len(record) {
				continue
			}
			row[header] = makeCell(record[col])
		}
		if normalize.RowIsEmpty(row) {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// makeCell types a raw string value: numerics (including Excel date
// serials) become number cells, anything else stays a string.
func makeCell(raw string) normalize.Cell {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return normalize.EmptyCell()
	}
	if num, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return normalize.NumberCell(num)
	}
	return normalize.StringCell(trimmed)
}
