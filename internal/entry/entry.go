// Package entry owns the central expense record: its canonical field
// vocabulary, the shared-allocation invariant, and every mutation path
// (manual CRUD plus the bulk import pipeline feeding the same service).
package entry

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	internal "github.com/frahmantamala/cardspend/internal"
)

// Status of the underlying service/subscription.
const (
	StatusActive   = "Active"
	StatusDeclined = "Declined"
	StatusDeactive = "Deactive"
)

// EntryStatus is the approval workflow dimension. Only Accepted entries
// are visible in listings and eligible for renewal tracking.
const (
	EntryStatusPending  = "Pending"
	EntryStatusAccepted = "Accepted"
	EntryStatusRejected = "Rejected"
)

// Manual duplicate overrides. Unique pins an entry out of automatic
// grouping; Merged marks a reviewed, acknowledged duplicate. Empty means
// the detector decides.
const (
	DuplicateStatusUnique = "Unique"
	DuplicateStatusMerged = "Merged"
)

var (
	AllowedCurrencies = []string{"USD", "EUR", "GBP", "INR", "AUD", "CAD"}

	AllowedStatuses = []string{StatusActive, StatusDeclined, StatusDeactive}

	AllowedBusinessUnits = []string{"DWSG", "Signature", "Collabx", "Wytlabs", "Smegoweb"}

	AllowedCostCenters = []string{"Ops", "FE", "OH Exps", "Support", "Management EXPS"}

	AllowedApprovers = []string{"Vaibhav", "Marc", "Dawood", "Raghav", "Tarun", "Yulia", "Sarthak", "Harshit"}

	AllowedServiceTypes = []string{
		"Domain", "Google", "Google Adwords Expense", "Hosting", "Proxy",
		"Server", "Service", "Tool", "Staff & welfare", "Tools & Service",
	}

	AllowedRecurring = []string{"Monthly", "Yearly", "One-time", "Quaterly"}

	AllowedEntryStatuses = []string{EntryStatusPending, EntryStatusAccepted, EntryStatusRejected}
)

// Allocation is one business unit's share of a shared entry.
type Allocation struct {
	BusinessUnit string          `json:"business_unit"`
	Amount       decimal.Decimal `json:"amount"`
}

// AllocationList persists as a jsonb column.
type AllocationList []Allocation

func (a AllocationList) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

func (a *AllocationList) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported allocation list type %T", value)
	}
	if len(raw) == 0 {
		*a = nil
		return nil
	}
	return json.Unmarshal(raw, a)
}

// Total sums the allocation amounts.
func (a AllocationList) Total() decimal.Decimal {
	total := decimal.Zero
	for _, alloc := range a {
		total = total.Add(alloc.Amount)
	}
	return total
}

// Entry is the expense record.
type Entry struct {
	ID             string `json:"id" gorm:"primaryKey;type:uuid"`
	CardNumber     string `json:"card_number" gorm:"column:card_number;not null"`
	CardAssignedTo string `json:"card_assigned_to" gorm:"column:card_assigned_to"`
	Particulars    string `json:"particulars" gorm:"not null"`
	Narration      string `json:"narration"`
	BillStatus     string `json:"bill_status" gorm:"column:bill_status"`

	Amount      decimal.Decimal `json:"amount" gorm:"type:numeric(18,2);not null"`
	Currency    string          `json:"currency" gorm:"not null"`
	XERate      decimal.Decimal `json:"xe_rate" gorm:"column:xe_rate;type:numeric(18,6)"`
	AmountInINR decimal.Decimal `json:"amount_in_inr" gorm:"column:amount_in_inr;type:numeric(18,2)"`

	Status         string `json:"status" gorm:"default:Active"`
	TypeOfService  string `json:"type_of_service" gorm:"column:type_of_service"`
	BusinessUnit   string `json:"business_unit" gorm:"column:business_unit"`
	CostCenter     string `json:"cost_center" gorm:"column:cost_center"`
	ApprovedBy     string `json:"approved_by" gorm:"column:approved_by"`
	ServiceHandler string `json:"service_handler" gorm:"column:service_handler"`

	EntryStatus     string `json:"entry_status" gorm:"column:entry_status;default:Pending"`
	DuplicateStatus string `json:"duplicate_status,omitempty" gorm:"column:duplicate_status"`

	Date  time.Time `json:"date" gorm:"type:date;not null"`
	Month string    `json:"month"`

	Recurring                        string     `json:"recurring"`
	NextRenewalDate                  *time.Time `json:"next_renewal_date,omitempty" gorm:"column:next_renewal_date;type:date"`
	RenewalNotificationSent          bool       `json:"renewal_notification_sent" gorm:"column:renewal_notification_sent;default:false"`
	AutoCancellationNotificationSent bool       `json:"auto_cancellation_notification_sent" gorm:"column:auto_cancellation_notification_sent;default:false"`
	DisabledAt                       *time.Time `json:"disabled_at,omitempty" gorm:"column:disabled_at"`

	IsShared          bool           `json:"is_shared" gorm:"column:is_shared;default:false"`
	SharedAllocations AllocationList `json:"shared_allocations,omitempty" gorm:"column:shared_allocations;type:jsonb"`

	CreatedBy string    `json:"created_by" gorm:"column:created_by"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (Entry) TableName() string {
	return "expense_entries"
}

// RecomputeINR refreshes the derived INR amount from amount and rate.
func (e *Entry) RecomputeINR() {
	e.AmountInINR = e.Amount.Mul(e.XERate).Round(2)
}

// Deactivate transitions status to Deactive and stamps disabled_at once.
func (e *Entry) Deactivate(now time.Time) {
	e.Status = StatusDeactive
	if e.DisabledAt == nil {
		e.DisabledAt = &now
	}
}

// IsRenewalTracked reports whether the lifecycle sweeps consider this
// entry: only accepted, active entries with a renewal date on the books.
func (e *Entry) IsRenewalTracked() bool {
	return e.EntryStatus == EntryStatusAccepted &&
		e.Status == StatusActive &&
		e.NextRenewalDate != nil
}

// Domain errors
var (
	ErrEntryNotFound       = internal.NewNotFoundError("entry not found", internal.ErrCodeEntryNotFound)
	ErrAllocationsExceed   = internal.NewValidationError("Shared allocations exceed total amount", internal.ErrCodeAllocationExceeded)
	ErrUnauthorizedAccess  = internal.NewForbiddenError("insufficient permissions", internal.ErrCodeUnauthorizedAccess)
	ErrDuplicateCardNumber = internal.NewConflictError("card number already registered", internal.ErrCodeDuplicateCard)
)
