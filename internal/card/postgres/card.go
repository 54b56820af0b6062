package postgres

import (
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/cardspend/internal/card"
)

// CardRepository implements the card.Repository interface using GORM
type CardRepository struct {
	db *gorm.DB
}

func NewCardRepository(db *gorm.DB) card.Repository {
	return &CardRepository{db: db}
}

func (r *CardRepository) Create(c *card.Card) error {
	return r.db.Create(c).Error
}

func (r *CardRepository) GetByID(id string) (*card.Card, error) {
	var c card.Card
	err := r.db.Where("id = ?", id).First(&c).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, card.ErrCardNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *CardRepository) GetByNumber(normalized string) (*card.Card, error) {
	var c card.Card
	err := r.db.Where("number = ?", normalized).First(&c).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, card.ErrCardNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *CardRepository) GetAll() ([]*card.Card, error) {
	var cards []*card.Card
	err := r.db.Order("number ASC").Find(&cards).Error
	return cards, err
}

func (r *CardRepository) Update(c *card.Card) error {
	c.UpdatedAt = time.Now()
	return r.db.Save(c).Error
}
