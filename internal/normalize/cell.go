// Package normalize coerces free-form spreadsheet and form input into
// canonical values: dates in a handful of formats, amounts with currency
// noise, enum synonyms and month labels. Every parser here is pure and
// returns an ok flag instead of an error; callers decide whether a failed
// parse is a row-level problem or can be ignored.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type CellKind int

const (
	CellEmpty CellKind = iota
	CellString
	CellNumber
	CellTime
)

// Cell is the sum type for a single spreadsheet cell value:
// string, number, timestamp or empty.
type Cell struct {
	Kind CellKind
	Str  string
	Num  float64
	Time time.Time
}

func StringCell(s string) Cell  { return Cell{Kind: CellString, Str: s} }
func NumberCell(f float64) Cell { return Cell{Kind: CellNumber, Num: f} }
func TimeCell(t time.Time) Cell { return Cell{Kind: CellTime, Time: t} }
func EmptyCell() Cell           { return Cell{Kind: CellEmpty} }

func (c Cell) IsEmpty() bool {
	switch c.Kind {
	case CellEmpty:
		return true
	case CellString:
		return strings.TrimSpace(c.Str) == ""
	default:
		return false
	}
}

// Text renders the cell as a trimmed string, the way it would appear in
// the sheet.
func (c Cell) Text() string {
	switch c.Kind {
	case CellString:
		return strings.TrimSpace(c.Str)
	case CellNumber:
		return strconv.FormatFloat(c.Num, 'f', -1, 64)
	case CellTime:
		return c.Time.UTC().Format("2006-01-02")
	default:
		return ""
	}
}

// Row is one data row keyed by the header text exactly as it appeared in
// the uploaded file.
type Row map[string]Cell

// ResolveField looks a logical field up by any of its historical header
// spellings. Header and alias comparison is trim- and case-insensitive.
func ResolveField(row Row, aliases ...string) (Cell, bool) {
	if len(row) == 0 {
		return Cell{}, false
	}
	normalized := make(map[string]Cell, len(row))
	for key, val := range row {
		norm := strings.ToLower(strings.TrimSpace(key))
		if norm != "" {
			normalized[norm] = val
		}
	}
	for _, alias := range aliases {
		norm := strings.ToLower(strings.TrimSpace(alias))
		if norm == "" {
			continue
		}
		if cell, ok := normalized[norm]; ok {
			return cell, true
		}
	}
	return Cell{}, false
}

// RowIsEmpty reports whether every cell in the row is blank; entirely
// empty rows are skipped during import.
func RowIsEmpty(row Row) bool {
	for _, cell := range row {
		if !cell.IsEmpty() {
			return false
		}
	}
	return true
}

func (c Cell) String() string {
	return fmt.Sprintf("Cell(%s)", c.Text())
}
