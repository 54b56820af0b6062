package postgres

import (
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/cardspend/internal/notification"
)

// NotificationRepository implements the notification.Repository
// interface using GORM
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) notification.Repository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(n *notification.Notification) error {
	return r.db.Create(n).Error
}

func (r *NotificationRepository) GetByUserID(userID string, limit, offset int) ([]*notification.Notification, error) {
	var notifications []*notification.Notification
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&notifications).Error
	return notifications, err
}

func (r *NotificationRepository) MarkRead(id string, readAt time.Time) error {
	result := r.db.Model(&notification.Notification{}).
		Where("id = ? AND read_at IS NULL", id).
		Update("read_at", readAt)
	return result.Error
}
