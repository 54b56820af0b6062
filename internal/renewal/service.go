package renewal

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Candidate is the slice of an entry the lifecycle engine needs. The
// store materializes it from the entries table; this package never
// touches entry rows directly.
type Candidate struct {
	ID               string
	Particulars      string
	CardNumber       string
	BusinessUnit     string
	ServiceHandler   string
	Recurring        string
	Currency         string
	Amount           decimal.Decimal
	Date             time.Time
	RenewalDate      *time.Time
	ReminderSent     bool
	CancelNoticeSent bool
}

// EntryStore is the persistence surface the engine drives entries
// through.
type EntryStore interface {
	GetCandidate(id string) (*Candidate, error)
	// ListDueWithin returns tracked entries whose renewal date falls in
	// (now, now+days] and whose reminder flag is unset.
	ListDueWithin(now time.Time, days int) ([]*Candidate, error)
	// ListOverdue returns tracked entries whose renewal date passed more
	// than graceDays ago and whose cancel-notice flag is unset.
	ListOverdue(now time.Time, graceDays int) ([]*Candidate, error)
	// ListPastDue returns every tracked entry with a renewal date at or
	// before now, regardless of notification flags.
	ListPastDue(now time.Time) ([]*Candidate, error)
	// SetRenewalDate moves the renewal date; resetFlags clears both
	// notification flags so the new cycle can notify fresh.
	SetRenewalDate(id string, next *time.Time, resetFlags bool) error
	MarkReminderSent(id string) error
	MarkCancelNoticeSent(id string) error
	Deactivate(id string, now time.Time) error
	DeleteRejectedBefore(cutoff time.Time) (int, error)
}

// Service applies renewal decisions.
type Service struct {
	store  EntryStore
	logs   LogRepository
	logger *slog.Logger
}

func NewService(store EntryStore, logs LogRepository, logger *slog.Logger) *Service {
	return &Service{store: store, logs: logs, logger: logger}
}

// guardCycle enforces one action per (entry, renewalDate) cycle.
func (s *Service) guardCycle(c *Candidate) error {
	if c.RenewalDate == nil {
		return ErrNotRecurring
	}
	handled, err := s.logs.HasCycleAction(c.ID, *c.RenewalDate)
	if err != nil {
		return err
	}
	if handled {
		return ErrCycleAlreadyHandled
	}
	return nil
}

// Continue records the handler's decision to keep the subscription and
// rolls the renewal date into the next cycle, clearing both notification
// flags. The log is written first; a failed date move after a written
// log is an accepted inconsistency.
func (s *Service) Continue(entryID, handler, reason string) error {
	c, err := s.store.GetCandidate(entryID)
	if err != nil {
		s.logger.Error("continue: entry not found", "error", err, "entry_id", entryID)
		return ErrEntryNotFound
	}
	if err := s.guardCycle(c); err != nil {
		return err
	}

	n := NextRenewalDate(c.Recurring, *c.RenewalDate)
	if n == nil {
		return ErrNotRecurring
	}
	next := *n
	// Catch up if the decision arrives cycles late.
	if advanced, moved := AdvanceOverdue(c.Recurring, next, time.Now()); moved {
		next = advanced
	}

	if err := s.appendLog(c, ActionContinue, handler, reason); err != nil {
		return err
	}
	if err := s.store.SetRenewalDate(entryID, &next, true); err != nil {
		s.logger.Error("continue: failed to advance renewal date", "error", err, "entry_id", entryID)
		return err
	}

	s.logger.Info("renewal continued", "entry_id", entryID, "handler", handler, "next_renewal", next.Format("2006-01-02"))
	return nil
}

// Cancel records the decision to drop the subscription and deactivates
// the entry.
func (s *Service) Cancel(entryID, handler, reason string) error {
	c, err := s.store.GetCandidate(entryID)
	if err != nil {
		s.logger.Error("cancel: entry not found", "error", err, "entry_id", entryID)
		return ErrEntryNotFound
	}
	if err := s.guardCycle(c); err != nil {
		return err
	}

	if err := s.appendLog(c, ActionCancel, handler, reason); err != nil {
		return err
	}
	if err := s.store.Deactivate(entryID, time.Now()); err != nil {
		s.logger.Error("cancel: failed to deactivate entry", "error", err, "entry_id", entryID)
		return err
	}

	s.logger.Info("renewal cancelled", "entry_id", entryID, "handler", handler)
	return nil
}

// LogsForEntry returns the audit trail of one entry.
func (s *Service) LogsForEntry(entryID string) ([]*RenewalLog, error) {
	return s.logs.GetByEntryID(entryID)
}

// AllLogs returns the audit trail across entries.
func (s *Service) AllLogs(limit, offset int) ([]*RenewalLog, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.logs.GetAll(limit, offset)
}

func (s *Service) appendLog(c *Candidate, action, handler, reason string) error {
	if handler == "" {
		handler = c.ServiceHandler
	}
	log := &RenewalLog{
		ID:             uuid.NewString(),
		EntryID:        c.ID,
		ServiceHandler: handler,
		Action:         action,
		Reason:         reason,
		RenewalDate:    c.RenewalDate,
		CreatedAt:      time.Now(),
	}
	if err := s.logs.Append(log); err != nil {
		s.logger.Error("failed to append renewal log", "error", err, "entry_id", c.ID, "action", action)
		return err
	}
	return nil
}
