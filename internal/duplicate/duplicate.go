// Package duplicate surfaces likely double-entered expense rows. All
// detection is read-time and advisory: annotations are layered onto a
// projection of the result set and never persisted, so every listing
// recomputes them against the current data.
package duplicate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	FlagDuplicate = "duplicate"
	FlagUnique    = "unique"
)

// Record carries the fields that participate in fingerprinting plus the
// tie-break ordering inputs. ManualUnique reflects a reviewer override
// that pins an entry out of grouping entirely.
type Record struct {
	ID           string
	CardNumber   string
	Date         time.Time
	Particulars  string
	BusinessUnit string
	Amount       decimal.Decimal
	Currency     string
	CreatedAt    time.Time
	ManualUnique bool
}

// Annotation is the transient per-record result. Index is 1-based within
// a duplicate group and 0 for unique records.
type Annotation struct {
	GroupKey string
	Flag     string
	Index    int
	Label    string
}

func normalizeToken(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// Key builds the composite fingerprint. Two records with an identical
// key are candidate duplicates.
func Key(r Record) string {
	dateKey := ""
	if !r.Date.IsZero() {
		dateKey = r.Date.UTC().Format("2006-01-02")
	}
	parts := []string{
		normalizeToken(r.CardNumber),
		dateKey,
		normalizeToken(r.Particulars),
		normalizeToken(r.BusinessUnit),
		r.Amount.Round(2).StringFixed(2),
		normalizeToken(r.Currency),
	}
	return strings.Join(parts, "|")
}

// Annotate groups records sharing a fingerprint and labels every member
// of a group of two or more "Duplicate N", ordered by creation time then
// ID for a deterministic tie-break. There is no canonical "original":
// the earliest member is flagged like the rest. Records manually marked
// unique never join a group. The returned slice is positionally aligned
// with the input.
func Annotate(records []Record) []Annotation {
	annotations := make([]Annotation, len(records))
	groups := make(map[string][]int)

	for i, record := range records {
		key := Key(record)
		annotations[i].GroupKey = key
		if record.ManualUnique || key == "" {
			continue
		}
		groups[key] = append(groups[key], i)
	}

	for _, members := range groups {
		if len(members) <= 1 {
			continue
		}
		sort.SliceStable(members, func(a, b int) bool {
			ra, rb := records[members[a]], records[members[b]]
			if !ra.CreatedAt.Equal(rb.CreatedAt) {
				return ra.CreatedAt.Before(rb.CreatedAt)
			}
			return ra.ID < rb.ID
		})
		for pos, idx := range members {
			annotations[idx].Flag = FlagDuplicate
			annotations[idx].Index = pos + 1
			annotations[idx].Label = fmt.Sprintf("Duplicate %d", pos+1)
		}
	}

	for i := range annotations {
		if annotations[i].Label == "" {
			annotations[i].Flag = FlagUnique
			annotations[i].Index = 0
			annotations[i].Label = "Unique"
		}
	}

	return annotations
}

// Filter selects which annotated records a listing keeps.
type Filter int

const (
	FilterNone Filter = iota
	FilterDuplicates
	FilterUnique
)

// ParseFilter maps the query token onto a filter. Unknown tokens mean
// no filtering, matching the permissive upstream behavior.
func ParseFilter(raw string) Filter {
	switch normalizeToken(raw) {
	case "duplicate", "duplicated", "merged":
		return FilterDuplicates
	case "unique":
		return FilterUnique
	default:
		return FilterNone
	}
}

// Keep reports whether a record with the given flag passes the filter.
// Filtering must run strictly after Annotate: grouping needs the full
// unfiltered set to find matches.
func (f Filter) Keep(flag string) bool {
	switch f {
	case FilterDuplicates:
		return flag == FlagDuplicate
	case FilterUnique:
		return flag == FlagUnique
	default:
		return true
	}
}
