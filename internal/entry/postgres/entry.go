package postgres

import (
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/cardspend/internal/entry"
)

// EntryRepository implements the entry.Repository interface using GORM
type EntryRepository struct {
	db *gorm.DB
}

// NewEntryRepository creates a new expense entry repository
func NewEntryRepository(db *gorm.DB) entry.Repository {
	return &EntryRepository{db: db}
}

func (r *EntryRepository) Create(e *entry.Entry) error {
	return r.db.Create(e).Error
}

func (r *EntryRepository) GetByID(id string) (*entry.Entry, error) {
	var e entry.Entry
	err := r.db.Where("id = ?", id).First(&e).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, entry.ErrEntryNotFound
		}
		return nil, err
	}
	return &e, nil
}

// List returns the full filtered result set ordered by transaction
// date. Pagination happens upstream, after duplicate annotation, so no
// LIMIT is applied here.
func (r *EntryRepository) List(filters entry.ListFilters) ([]*entry.Entry, error) {
	q := r.db.Model(&entry.Entry{})

	if filters.BusinessUnit != "" {
		q = q.Where("business_unit = ?", filters.BusinessUnit)
	}
	if filters.CostCenter != "" {
		q = q.Where("cost_center = ?", filters.CostCenter)
	}
	if filters.Status != "" {
		q = q.Where("status = ?", filters.Status)
	}
	if filters.EntryStatus != "" {
		q = q.Where("entry_status = ?", filters.EntryStatus)
	}
	if filters.Month != "" {
		q = q.Where("month = ?", filters.Month)
	}
	if filters.CardNumber != "" {
		q = q.Where("card_number = ?", filters.CardNumber)
	}
	if filters.ServiceHandler != "" {
		q = q.Where("service_handler ILIKE ?", "%"+filters.ServiceHandler+"%")
	}
	if filters.Search != "" {
		pattern := "%" + filters.Search + "%"
		q = q.Where(
			"particulars ILIKE ? OR narration ILIKE ? OR card_number ILIKE ? OR card_assigned_to ILIKE ?",
			pattern, pattern, pattern, pattern,
		)
	}

	var entries []*entry.Entry
	err := q.Order("date DESC, created_at DESC").Find(&entries).Error
	return entries, err
}

func (r *EntryRepository) Update(e *entry.Entry) error {
	e.UpdatedAt = time.Now()
	return r.db.Save(e).Error
}

func (r *EntryRepository) Delete(id string) error {
	result := r.db.Where("id = ?", id).Delete(&entry.Entry{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return entry.ErrEntryNotFound
	}
	return nil
}

func (r *EntryRepository) DeleteMany(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Where("id IN ?", ids).Delete(&entry.Entry{}).Error
}
