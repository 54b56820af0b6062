package renewal

import "time"

// Recurring interval values. "Quaterly" is misspelled on purpose: the
// historical data and spreadsheets carry that exact token, and renaming
// it would orphan every existing row.
const (
	RecurringMonthly  = "Monthly"
	RecurringYearly   = "Yearly"
	RecurringOneTime  = "One-time"
	RecurringQuaterly = "Quaterly"
)

// Interval returns the cycle length of a recurring value as calendar
// (years, months) offsets. ok=false means the value never renews.
func Interval(recurring string) (years, months int, ok bool) {
	switch recurring {
	case RecurringMonthly:
		return 0, 1, true
	case RecurringQuaterly:
		return 0, 3, true
	case RecurringYearly:
		return 1, 0, true
	default:
		return 0, 0, false
	}
}

// NextRenewalDate computes the first renewal date after the transaction
// date. Returns nil for one-time or unknown recurring values.
func NextRenewalDate(recurring string, from time.Time) *time.Time {
	years, months, ok := Interval(recurring)
	if !ok || from.IsZero() {
		return nil
	}
	next := from.AddDate(years, months, 0)
	return &next
}

// AdvanceOverdue rolls a renewal date forward by whole intervals until
// it lands strictly after now. Handles a scheduler that was down across
// several cycle boundaries. advanced=false means the date was already in
// the future or the recurring value has no interval.
func AdvanceOverdue(recurring string, renewalDate time.Time, now time.Time) (time.Time, bool) {
	years, months, ok := Interval(recurring)
	if !ok {
		return renewalDate, false
	}
	advanced := false
	next := renewalDate
	for !next.After(now) {
		next = next.AddDate(years, months, 0)
		advanced = true
	}
	return next, advanced
}
