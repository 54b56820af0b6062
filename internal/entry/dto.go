package entry

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/cardspend/internal/normalize"
)

// CreateEntryDTO is the manual-entry request payload. Bulk import rows
// funnel into the same shape after normalization.
type CreateEntryDTO struct {
	CardNumber     string          `json:"card_number" validate:"required"`
	CardAssignedTo string          `json:"card_assigned_to" validate:"required"`
	Particulars    string          `json:"particulars" validate:"required"`
	Narration      string          `json:"narration,omitempty"`
	BillStatus     string          `json:"bill_status,omitempty"`
	Amount         decimal.Decimal `json:"amount" validate:"required"`
	Currency       string          `json:"currency" validate:"required"`
	XERate         decimal.Decimal `json:"xe_rate,omitempty"`
	Status         string          `json:"status,omitempty"`
	TypeOfService  string          `json:"type_of_service,omitempty"`
	BusinessUnit   string          `json:"business_unit,omitempty"`
	CostCenter     string          `json:"cost_center,omitempty"`
	ApprovedBy     string          `json:"approved_by,omitempty"`
	ServiceHandler string          `json:"service_handler,omitempty"`
	Date           time.Time       `json:"date" validate:"required"`
	Month          string          `json:"month,omitempty"`
	Recurring      string          `json:"recurring,omitempty"`
	IsShared       bool            `json:"is_shared,omitempty"`
	Allocations    AllocationList  `json:"shared_allocations,omitempty"`
	EntryStatus    string          `json:"entry_status,omitempty"`
}

// Validate checks the mandatory fields and enum memberships.
func (dto CreateEntryDTO) Validate() error {
	var missing []string
	if strings.TrimSpace(dto.CardNumber) == "" {
		missing = append(missing, "cardNumber")
	}
	if strings.TrimSpace(dto.CardAssignedTo) == "" {
		missing = append(missing, "cardAssignedTo")
	}
	if strings.TrimSpace(dto.Particulars) == "" {
		missing = append(missing, "particulars")
	}
	if dto.Date.IsZero() {
		missing = append(missing, "date")
	}
	if dto.Amount.IsZero() {
		missing = append(missing, "amount")
	}
	if len(missing) > 0 {
		return errors.New("Missing required fields: " + strings.Join(missing, ", "))
	}

	if dto.Amount.IsNegative() {
		return errors.New("amount must be positive")
	}
	if normalize.NormalizeEnum(dto.Currency, nil, AllowedCurrencies) == "" {
		return errors.New("unsupported currency: " + dto.Currency)
	}
	if dto.BusinessUnit != "" && normalize.NormalizeEnum(dto.BusinessUnit, nil, AllowedBusinessUnits) == "" {
		return errors.New("unknown business unit: " + dto.BusinessUnit)
	}
	if dto.Recurring != "" && normalize.NormalizeEnum(dto.Recurring, nil, AllowedRecurring) == "" {
		return errors.New("unknown recurring value: " + dto.Recurring)
	}
	return nil
}

// UpdateEntryDTO carries a partial edit. Pointer fields distinguish
// "leave alone" from "set to zero value".
type UpdateEntryDTO struct {
	CardNumber      *string          `json:"card_number,omitempty"`
	CardAssignedTo  *string          `json:"card_assigned_to,omitempty"`
	Particulars     *string          `json:"particulars,omitempty"`
	Narration       *string          `json:"narration,omitempty"`
	BillStatus      *string          `json:"bill_status,omitempty"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	Currency        *string          `json:"currency,omitempty"`
	XERate          *decimal.Decimal `json:"xe_rate,omitempty"`
	Status          *string          `json:"status,omitempty"`
	TypeOfService   *string          `json:"type_of_service,omitempty"`
	BusinessUnit    *string          `json:"business_unit,omitempty"`
	CostCenter      *string          `json:"cost_center,omitempty"`
	ApprovedBy      *string          `json:"approved_by,omitempty"`
	ServiceHandler  *string          `json:"service_handler,omitempty"`
	Date            *time.Time       `json:"date,omitempty"`
	Month           *string          `json:"month,omitempty"`
	Recurring       *string          `json:"recurring,omitempty"`
	IsShared        *bool            `json:"is_shared,omitempty"`
	Allocations     *AllocationList  `json:"shared_allocations,omitempty"`
	EntryStatus     *string          `json:"entry_status,omitempty"`
	DuplicateStatus *string          `json:"duplicate_status,omitempty"`
	Reason          string           `json:"reason,omitempty"`
}

// ListQuery narrows a listing. DuplicateFilter takes the tokens the UI
// sends: duplicate/duplicated/merged or unique; anything else means no
// duplicate filtering.
type ListQuery struct {
	BusinessUnit    string
	CostCenter      string
	Status          string
	EntryStatus     string
	Month           string
	CardNumber      string
	ServiceHandler  string
	Search          string
	DuplicateFilter string
	Limit           int
	Offset          int
}

// ListFilters is the persistence-level subset of ListQuery. Duplicate
// filtering and pagination happen in memory after annotation, so they
// never reach the repository.
type ListFilters struct {
	BusinessUnit   string
	CostCenter     string
	Status         string
	EntryStatus    string
	Month          string
	CardNumber     string
	ServiceHandler string
	Search         string
}

// EntryView is the read-time projection: the persisted entry plus the
// transient duplicate annotation. None of the Duplicate* fields are ever
// written back.
type EntryView struct {
	Entry
	DuplicateGroupKey string `json:"duplicate_group_key"`
	DuplicateFlag     string `json:"duplicate_flag"`
	DuplicateIndex    int    `json:"duplicate_index"`
	DuplicateLabel    string `json:"duplicate_label"`
}

// ListResult pairs a page of annotated entries with the pre-pagination
// total so clients can render page controls.
type ListResult struct {
	Entries []*EntryView `json:"entries"`
	Total   int          `json:"total"`
}

// BulkDeleteDTO names the entries to remove in one request.
type BulkDeleteDTO struct {
	IDs    []string `json:"ids" validate:"required"`
	Reason string   `json:"reason,omitempty"`
}

func (dto BulkDeleteDTO) Validate() error {
	if len(dto.IDs) == 0 {
		return errors.New("ids is required")
	}
	return nil
}
