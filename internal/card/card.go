// Package card is the reusable card-number registry. Numbers are
// normalized before storage so the same physical card never registers
// twice under different spellings.
package card

import (
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	internal "github.com/frahmantamala/cardspend/internal"
)

type Card struct {
	ID         string    `json:"id" gorm:"primaryKey;type:uuid"`
	Number     string    `json:"number" gorm:"uniqueIndex;not null"`
	AssignedTo string    `json:"assigned_to" gorm:"column:assigned_to"`
	IsActive   bool      `json:"is_active" gorm:"column:is_active;default:true"`
	CreatedAt  time.Time `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (Card) TableName() string {
	return "cards"
}

// NormalizeNumber canonicalizes a card number: trimmed, upper-cased,
// internal whitespace removed. Uniqueness is enforced on this form.
func NormalizeNumber(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(raw), ""))
}

var (
	ErrCardNotFound  = internal.NewNotFoundError("card not found", internal.ErrCodeCardNotFound)
	ErrDuplicateCard = internal.NewConflictError("card number already registered", internal.ErrCodeDuplicateCard)
)

// Repository defines card data access.
type Repository interface {
	Create(c *Card) error
	GetByID(id string) (*Card, error)
	GetByNumber(normalized string) (*Card, error)
	GetAll() ([]*Card, error)
	Update(c *Card) error
}

// Service handles card registry logic.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

type RegisterCardDTO struct {
	Number     string `json:"number" validate:"required"`
	AssignedTo string `json:"assigned_to"`
}

// RegisterCard stores a new card, rejecting duplicates of the
// normalized number.
func (s *Service) RegisterCard(dto RegisterCardDTO) (*Card, error) {
	normalized := NormalizeNumber(dto.Number)
	if normalized == "" {
		return nil, internal.NewValidationError("card number is required", internal.ErrCodeValidationFailed)
	}

	if existing, err := s.repo.GetByNumber(normalized); err == nil && existing != nil {
		s.logger.Warn("card already registered", "number", normalized)
		return nil, ErrDuplicateCard
	}

	now := time.Now()
	c := &Card{
		ID:         uuid.NewString(),
		Number:     normalized,
		AssignedTo: strings.TrimSpace(dto.AssignedTo),
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(c); err != nil {
		s.logger.Error("failed to register card", "error", err)
		return nil, err
	}

	s.logger.Info("card registered", "card_id", c.ID, "assigned_to", c.AssignedTo)
	return c, nil
}

// ListCards returns the registry.
func (s *Service) ListCards() ([]*Card, error) {
	cards, err := s.repo.GetAll()
	if err != nil {
		s.logger.Error("failed to list cards", "error", err)
		return nil, err
	}
	return cards, nil
}

// EnsureRegistered registers a card number seen during bulk import if
// it is new; an already-registered number is not an error here.
func (s *Service) EnsureRegistered(number, assignedTo string) {
	_, err := s.RegisterCard(RegisterCardDTO{Number: number, AssignedTo: assignedTo})
	if err != nil && err != ErrDuplicateCard {
		s.logger.Warn("could not auto-register card from import", "error", err)
	}
}
