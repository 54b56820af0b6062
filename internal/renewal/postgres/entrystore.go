package postgres

import (
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/cardspend/internal/entry"
	"github.com/frahmantamala/cardspend/internal/renewal"
)

// EntryStore implements the renewal.EntryStore interface over the
// expense entry table. The lifecycle engine only ever sees candidates,
// never the full entry.
type EntryStore struct {
	db *gorm.DB
}

func NewEntryStore(db *gorm.DB) renewal.EntryStore {
	return &EntryStore{db: db}
}

// trackedScope narrows a query to entries the lifecycle sweeps own:
// accepted, active, with a renewal date on the books.
func trackedScope(db *gorm.DB) *gorm.DB {
	return db.Model(&entry.Entry{}).
		Where("entry_status = ?", entry.EntryStatusAccepted).
		Where("status = ?", entry.StatusActive).
		Where("next_renewal_date IS NOT NULL")
}

func toCandidate(e *entry.Entry) *renewal.Candidate {
	return &renewal.Candidate{
		ID:               e.ID,
		Particulars:      e.Particulars,
		CardNumber:       e.CardNumber,
		BusinessUnit:     e.BusinessUnit,
		ServiceHandler:   e.ServiceHandler,
		Recurring:        e.Recurring,
		Currency:         e.Currency,
		Amount:           e.Amount,
		Date:             e.Date,
		RenewalDate:      e.NextRenewalDate,
		ReminderSent:     e.RenewalNotificationSent,
		CancelNoticeSent: e.AutoCancellationNotificationSent,
	}
}

func toCandidates(entries []*entry.Entry) []*renewal.Candidate {
	out := make([]*renewal.Candidate, len(entries))
	for i, e := range entries {
		out[i] = toCandidate(e)
	}
	return out
}

func (s *EntryStore) GetCandidate(id string) (*renewal.Candidate, error) {
	var e entry.Entry
	err := s.db.Where("id = ?", id).First(&e).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, renewal.ErrEntryNotFound
		}
		return nil, err
	}
	return toCandidate(&e), nil
}

func (s *EntryStore) ListDueWithin(now time.Time, days int) ([]*renewal.Candidate, error) {
	horizon := now.AddDate(0, 0, days)
	var entries []*entry.Entry
	err := trackedScope(s.db).
		Where("next_renewal_date > ? AND next_renewal_date <= ?",
			now.Format("2006-01-02"), horizon.Format("2006-01-02")).
		Where("renewal_notification_sent = ?", false).
		Order("next_renewal_date ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return toCandidates(entries), nil
}

func (s *EntryStore) ListOverdue(now time.Time, graceDays int) ([]*renewal.Candidate, error) {
	cutoff := now.AddDate(0, 0, -graceDays)
	var entries []*entry.Entry
	err := trackedScope(s.db).
		Where("next_renewal_date < ?", cutoff.Format("2006-01-02")).
		Where("auto_cancellation_notification_sent = ?", false).
		Order("next_renewal_date ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return toCandidates(entries), nil
}

func (s *EntryStore) ListPastDue(now time.Time) ([]*renewal.Candidate, error) {
	var entries []*entry.Entry
	err := trackedScope(s.db).
		Where("next_renewal_date <= ?", now.Format("2006-01-02")).
		Order("next_renewal_date ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return toCandidates(entries), nil
}

func (s *EntryStore) SetRenewalDate(id string, next *time.Time, resetFlags bool) error {
	updates := map[string]interface{}{
		"next_renewal_date": next,
		"updated_at":        time.Now(),
	}
	if resetFlags {
		updates["renewal_notification_sent"] = false
		updates["auto_cancellation_notification_sent"] = false
	}
	return s.update(id, updates)
}

func (s *EntryStore) MarkReminderSent(id string) error {
	return s.update(id, map[string]interface{}{
		"renewal_notification_sent": true,
		"updated_at":                time.Now(),
	})
}

func (s *EntryStore) MarkCancelNoticeSent(id string) error {
	return s.update(id, map[string]interface{}{
		"auto_cancellation_notification_sent": true,
		"updated_at":                          time.Now(),
	})
}

// Deactivate flips the entry to Deactive and stamps disabled_at if it
// is not already set.
func (s *EntryStore) Deactivate(id string, now time.Time) error {
	result := s.db.Model(&entry.Entry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      entry.StatusDeactive,
			"disabled_at": gorm.Expr("COALESCE(disabled_at, ?)", now),
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return renewal.ErrEntryNotFound
	}
	return nil
}

// DeleteRejectedBefore hard-deletes rejected entries untouched since the
// cutoff and reports how many went away. Keying on updated_at means a
// rejected entry someone recently edited gets a fresh retention window.
func (s *EntryStore) DeleteRejectedBefore(cutoff time.Time) (int, error) {
	result := s.db.Where("entry_status = ?", entry.EntryStatusRejected).
		Where("updated_at < ?", cutoff).
		Delete(&entry.Entry{})
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

func (s *EntryStore) update(id string, updates map[string]interface{}) error {
	result := s.db.Model(&entry.Entry{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return renewal.ErrEntryNotFound
	}
	return nil
}
