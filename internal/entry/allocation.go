package entry

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ValidateSharedAllocations normalizes a candidate allocation list
// against the entry total:
//
//   - amounts are coerced to their absolute value
//   - rows with an empty business unit or a non-positive amount are
//     dropped
//   - the entry's own business unit is appended at 0 when missing, so a
//     shared entry always names its primary unit
//   - the summed total must not exceed the entry amount; exceeding it is
//     a hard validation failure, never clamped
//
// When sharing is off the list is discarded entirely. The returned total
// is authoritative: a positive shared total replaces the entry's nominal
// amount in the create/update flow.
func ValidateSharedAllocations(isShared bool, candidates AllocationList, totalAmount decimal.Decimal, primaryBusinessUnit string) (AllocationList, decimal.Decimal, error) {
	if !isShared {
		return nil, decimal.Zero, nil
	}

	cleaned := make(AllocationList, 0, len(candidates)+1)
	primarySeen := false
	primary := strings.TrimSpace(primaryBusinessUnit)

	for _, candidate := range candidates {
		unit := strings.TrimSpace(candidate.BusinessUnit)
		amount := candidate.Amount.Abs()
		if unit == "" || !amount.IsPositive() {
			continue
		}
		if strings.EqualFold(unit, primary) {
			primarySeen = true
		}
		cleaned = append(cleaned, Allocation{BusinessUnit: unit, Amount: amount})
	}

	if primary != "" && !primarySeen {
		cleaned = append(cleaned, Allocation{BusinessUnit: primary, Amount: decimal.Zero})
	}

	total := cleaned.Total()
	if total.GreaterThan(totalAmount) {
		return nil, decimal.Zero, ErrAllocationsExceed
	}

	return cleaned, total, nil
}
