package postgres

import (
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/cardspend/internal/renewal"
)

// RenewalLogRepository implements the renewal.LogRepository interface
// using GORM. Logs are append-only; there is no update or delete path.
type RenewalLogRepository struct {
	db *gorm.DB
}

func NewRenewalLogRepository(db *gorm.DB) renewal.LogRepository {
	return &RenewalLogRepository{db: db}
}

func (r *RenewalLogRepository) Append(log *renewal.RenewalLog) error {
	return r.db.Create(log).Error
}

func (r *RenewalLogRepository) GetByEntryID(entryID string) ([]*renewal.RenewalLog, error) {
	var logs []*renewal.RenewalLog
	err := r.db.Where("entry_id = ?", entryID).
		Order("created_at DESC").
		Find(&logs).Error
	return logs, err
}

func (r *RenewalLogRepository) GetAll(limit, offset int) ([]*renewal.RenewalLog, error) {
	var logs []*renewal.RenewalLog
	err := r.db.Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error
	return logs, err
}

// HasCycleAction reports whether a cycle-closing action is already
// logged for this entry and renewal date. Dates compare by calendar
// day, matching the date column type.
func (r *RenewalLogRepository) HasCycleAction(entryID string, renewalDate time.Time) (bool, error) {
	var count int64
	err := r.db.Model(&renewal.RenewalLog{}).
		Where("entry_id = ? AND action IN ? AND renewal_date = ?",
			entryID, renewal.CycleClosingActions, renewalDate.Format("2006-01-02")).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
