package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var monthTokenPattern = regexp.MustCompile(`^([A-Za-z]{3})[-\s]?(\d{2,4})$`)

var monthAbbrevs = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// MonthLabel renders the canonical "Mon-YYYY" display label.
func MonthLabel(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("Jan-2006")
}

// monthYearParts extracts a (month, year) pair from an explicit month
// cell: a "Mar-2025" style token, or anything the date parser accepts.
func monthYearParts(c Cell) (time.Month, int, bool) {
	if c.Kind == CellTime {
		t := c.Time.UTC()
		return t.Month(), t.Year(), true
	}
	if c.Kind == CellNumber {
		if t, ok := ParseDate(c); ok {
			return t.Month(), t.Year(), true
		}
		return 0, 0, false
	}

	text := strings.TrimSpace(c.Str)
	if text == "" {
		return 0, 0, false
	}

	if m := monthTokenPattern.FindStringSubmatch(text); m != nil {
		if month, ok := monthAbbrevs[strings.ToLower(m[1])]; ok {
			yearRaw := m[2]
			if len(yearRaw) == 2 {
				yearRaw = "20" + yearRaw
			}
			if year, err := strconv.Atoi(yearRaw); err == nil {
				return month, year, true
			}
		}
	}

	if t, ok := parseDateString(text); ok {
		return t.Month(), t.Year(), true
	}

	return 0, 0, false
}

// ResolveMonthLabel decides the authoritative month label for an entry.
// The explicit month column is honored only while it agrees with the
// transaction date; on any month/year mismatch the date-derived label
// wins, so a typo in the free-text column cannot override the date.
func ResolveMonthLabel(raw Cell, transactionDate time.Time) string {
	fallback := MonthLabel(transactionDate)

	if raw.IsEmpty() {
		return fallback
	}

	month, year, ok := monthYearParts(raw)
	if !ok {
		return fallback
	}

	if !transactionDate.IsZero() {
		td := transactionDate.UTC()
		if month != td.Month() || year != td.Year() {
			return fallback
		}
	}

	label := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format("Jan-2006")
	if label == "" {
		return fallback
	}
	return label
}
