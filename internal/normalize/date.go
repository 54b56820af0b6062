package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// excelEpoch is day zero of the 1900 date system as spreadsheets store it.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

var (
	monthAbbrevPattern = regexp.MustCompile(`^\d{1,2}-[A-Za-z]{3}-\d{2,4}$`)
	threePartPattern   = regexp.MustCompile(`^\d{1,4}-\d{1,2}-\d{1,4}$`)
)

// stringLayouts are tried first for string cells, mirroring what a locale
// aware parse would accept.
var stringLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
}

// ExcelSerialDate converts a numeric spreadsheet serial (days since
// 1899-12-30, fractional part is the time of day) into a UTC timestamp.
func ExcelSerialDate(serial float64) time.Time {
	days := math.Floor(serial)
	fractional := serial - days
	seconds := math.Round(fractional * 86400)
	return excelEpoch.AddDate(0, 0, int(days)).Add(time.Duration(seconds) * time.Second)
}

// ParseDate resolves a cell into a UTC date. It accepts native date
// cells, numeric Excel serials and a range of string formats. Returns
// ok=false when nothing matches; callers treat that as a row-level
// validation failure, never a fatal one.
func ParseDate(c Cell) (time.Time, bool) {
	switch c.Kind {
	case CellTime:
		return c.Time.UTC(), true
	case CellNumber:
		if c.Num <= 0 {
			return time.Time{}, false
		}
		return ExcelSerialDate(c.Num), true
	case CellString:
		return parseDateString(c.Str)
	default:
		return time.Time{}, false
	}
}

func parseDateString(raw string) (time.Time, bool) {
	str := strings.TrimSpace(raw)
	if str == "" {
		return time.Time{}, false
	}

	for _, layout := range stringLayouts {
		if t, err := time.Parse(layout, str); err == nil {
			return t.UTC(), true
		}
	}

	normalized := strings.ReplaceAll(str, "/", "-")

	// dd-MMM-yy or dd-MMM-yyyy, e.g. 05-Jan-25
	if monthAbbrevPattern.MatchString(normalized) {
		for _, layout := range []string{"2-Jan-2006", "2-Jan-06"} {
			if t, err := time.Parse(layout, normalized); err == nil {
				return t.UTC(), true
			}
		}
	}

	if threePartPattern.MatchString(normalized) {
		return parseNumericParts(normalized)
	}

	return time.Time{}, false
}

// parseNumericParts handles mm-dd-yyyy vs dd-mm-yyyy. A part greater
// than 12 is unambiguously the day; otherwise month-first (US) wins.
// That default is lossy for day-first locales and is kept from the
// upstream data source; see DESIGN.md.
func parseNumericParts(normalized string) (time.Time, bool) {
	parts := strings.Split(normalized, "-")
	if len(parts) != 3 {
		return time.Time{}, false
	}

	yearPart := parts[2]
	if len(yearPart) == 2 {
		yearPart = "20" + yearPart
	}

	n1, err1 := strconv.Atoi(parts[0])
	n2, err2 := strconv.Atoi(parts[1])
	year, err3 := strconv.Atoi(yearPart)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}

	var month, day int
	switch {
	case n1 > 12:
		day, month = n1, n2
	case n2 > 12:
		month, day = n1, n2
	default:
		month, day = n1, n2
	}

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (Feb 30 -> Mar 2); reject those.
	if t.Day() != day || t.Month() != time.Month(month) {
		return time.Time{}, false
	}
	return t, true
}
