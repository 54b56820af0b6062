// Package renewal tracks the lifecycle of recurring expense entries:
// when the next billing cycle falls due, who was asked about it, and
// what they decided. Every decision lands in an append-only RenewalLog;
// logs are never updated or deleted.
package renewal

import (
	"time"

	internal "github.com/frahmantamala/cardspend/internal"
)

// RenewalLog action constants. Continue, Cancel and DisableByMIS close a
// renewal cycle; the rest are audit markers written by entry mutations.
const (
	ActionContinue          = "Continue"
	ActionCancel            = "Cancel"
	ActionDisableByMIS      = "DisableByMIS"
	ActionSharedEdit        = "SharedEdit"
	ActionDuplicateOverride = "DuplicateOverride"
	ActionDeleteEntry       = "DeleteEntry"
)

// CycleClosingActions resolve a (entry, renewalDate) cycle; once one is
// logged, no further reminder or auto-cancel notice fires for that pair.
var CycleClosingActions = []string{ActionContinue, ActionCancel, ActionDisableByMIS}

// RenewalLog is one immutable audit row. ServiceHandler is a display
// name, not a user reference; handler identity is resolved by fuzzy name
// match at notification time.
type RenewalLog struct {
	ID             string     `json:"id" gorm:"primaryKey;type:uuid"`
	EntryID        string     `json:"entry_id" gorm:"column:entry_id;type:uuid;not null;index"`
	ServiceHandler string     `json:"service_handler" gorm:"column:service_handler"`
	Action         string     `json:"action" gorm:"not null"`
	Reason         string     `json:"reason"`
	RenewalDate    *time.Time `json:"renewal_date,omitempty" gorm:"column:renewal_date;type:date"`
	CreatedAt      time.Time  `json:"created_at" gorm:"column:created_at;default:now()"`
}

func (RenewalLog) TableName() string {
	return "renewal_logs"
}

// LogRepository defines the append-only data access for renewal logs.
type LogRepository interface {
	Append(log *RenewalLog) error
	GetByEntryID(entryID string) ([]*RenewalLog, error)
	GetAll(limit, offset int) ([]*RenewalLog, error)
	HasCycleAction(entryID string, renewalDate time.Time) (bool, error)
}

var (
	ErrEntryNotFound       = internal.NewNotFoundError("entry not found", internal.ErrCodeEntryNotFound)
	ErrCycleAlreadyHandled = internal.NewConflictError("renewal cycle already handled", internal.ErrCodeCycleAlreadyHandled)
	ErrNotRecurring        = internal.NewValidationError("entry has no renewal schedule", internal.ErrCodeValidationFailed)
)
