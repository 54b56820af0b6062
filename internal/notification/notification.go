// Package notification keeps an in-app record of every email the system
// sends, so users can review what went out even if the mail was lost.
package notification

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	TypeEntryAccepted    = "entry_accepted"
	TypeRenewalReminder  = "renewal_reminder"
	TypeAutoCancellation = "auto_cancellation"
	TypeImportSummary    = "import_summary"
)

type Notification struct {
	ID        string     `json:"id" gorm:"primaryKey;type:uuid"`
	UserID    string     `json:"user_id" gorm:"column:user_id;type:uuid;index"`
	Email     string     `json:"email"`
	Type      string     `json:"type" gorm:"not null"`
	Subject   string     `json:"subject"`
	Body      string     `json:"body"`
	EntryID   string     `json:"entry_id,omitempty" gorm:"column:entry_id"`
	ReadAt    *time.Time `json:"read_at,omitempty" gorm:"column:read_at"`
	CreatedAt time.Time  `json:"created_at" gorm:"column:created_at;default:now()"`
}

func (Notification) TableName() string {
	return "notifications"
}

type Repository interface {
	Create(n *Notification) error
	GetByUserID(userID string, limit, offset int) ([]*Notification, error)
	MarkRead(id string, readAt time.Time) error
}

// Service records sent notifications. Recording failures are logged and
// swallowed; losing the in-app copy never fails the send path.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) Record(userID, email, notifType, subject, body, entryID string) {
	n := &Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Email:     email,
		Type:      notifType,
		Subject:   subject,
		Body:      body,
		EntryID:   entryID,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Create(n); err != nil {
		s.logger.Error("failed to record notification", "error", err, "type", notifType)
	}
}

func (s *Service) ListForUser(userID string, limit, offset int) ([]*Notification, error) {
	return s.repo.GetByUserID(userID, limit, offset)
}

func (s *Service) MarkRead(id string) error {
	return s.repo.MarkRead(id, time.Now())
}
