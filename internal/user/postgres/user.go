package postgres

import (
	"gorm.io/gorm"

	"github.com/frahmantamala/cardspend/internal/user"
)

// UserRepository implements the user.Repository interface using GORM
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) user.Repository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(u *user.User) error {
	return r.db.Create(u).Error
}

func (r *UserRepository) GetByID(id string) (*user.User, error) {
	var u user.User
	err := r.db.Where("id = ?", id).First(&u).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, user.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(email string) (*user.User, error) {
	var u user.User
	err := r.db.Where("LOWER(email) = LOWER(?)", email).First(&u).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, user.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByRole(role string) ([]*user.User, error) {
	var users []*user.User
	err := r.db.Where("role = ?", role).Order("name ASC").Find(&users).Error
	return users, err
}

func (r *UserRepository) GetByRoleAndBusinessUnit(role, businessUnit string) ([]*user.User, error) {
	var users []*user.User
	err := r.db.Where("role = ? AND business_unit = ?", role, businessUnit).
		Order("name ASC").
		Find(&users).Error
	return users, err
}

func (r *UserRepository) GetAll() ([]*user.User, error) {
	var users []*user.User
	err := r.db.Order("name ASC").Find(&users).Error
	return users, err
}
