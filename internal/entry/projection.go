package entry

import (
	"fmt"

	"github.com/frahmantamala/cardspend/internal/duplicate"
)

// AnnotateEntries builds the read-time projection: each entry paired
// with its duplicate annotation. Input order is preserved.
func AnnotateEntries(entries []*Entry) []*EntryView {
	records := make([]duplicate.Record, len(entries))
	for i, e := range entries {
		records[i] = duplicate.Record{
			ID:           e.ID,
			CardNumber:   e.CardNumber,
			Date:         e.Date,
			Particulars:  e.Particulars,
			BusinessUnit: e.BusinessUnit,
			Amount:       e.Amount,
			Currency:     e.Currency,
			CreatedAt:    e.CreatedAt,
			ManualUnique: e.DuplicateStatus == DuplicateStatusUnique,
		}
	}

	annotations := duplicate.Annotate(records)

	views := make([]*EntryView, len(entries))
	for i, e := range entries {
		views[i] = &EntryView{
			Entry:             *e,
			DuplicateGroupKey: annotations[i].GroupKey,
			DuplicateFlag:     annotations[i].Flag,
			DuplicateIndex:    annotations[i].Index,
			DuplicateLabel:    annotations[i].Label,
		}
	}
	return views
}

// ParseDuplicateFilter maps the listing query token onto a filter.
func ParseDuplicateFilter(raw string) duplicate.Filter {
	return duplicate.ParseFilter(raw)
}

// ErrUnsupportedCurrency builds the rejection for a currency outside the
// supported set.
func ErrUnsupportedCurrency(currency string) error {
	return fmt.Errorf("unsupported currency: %s", currency)
}
