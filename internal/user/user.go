// Package user holds accounts, roles and the name-based lookup used to
// route renewal notifications to service handlers.
package user

import (
	"errors"
	"strings"
	"time"
)

const (
	RoleSuperAdmin        = "super_admin"
	RoleMISManager        = "mis_manager"
	RoleBusinessUnitAdmin = "business_unit_admin"
	RoleSPOC              = "spoc"
	RoleServiceHandler    = "service_handler"
)

type User struct {
	ID           string    `json:"id" gorm:"primaryKey;type:uuid"`
	Name         string    `json:"name" gorm:"not null"`
	Email        string    `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"column:password_hash;not null"`
	Role         string    `json:"role" gorm:"not null"`
	BusinessUnit string    `json:"business_unit" gorm:"column:business_unit"`
	IsActive     bool      `json:"is_active" gorm:"column:is_active;default:true"`
	CreatedAt    time.Time `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (User) TableName() string {
	return "users"
}

// Repository defines user data access.
type Repository interface {
	Create(user *User) error
	GetByID(id string) (*User, error)
	GetByEmail(email string) (*User, error)
	GetByRole(role string) ([]*User, error)
	GetByRoleAndBusinessUnit(role, businessUnit string) ([]*User, error)
	GetAll() ([]*User, error)
}

var ErrUserNotFound = errors.New("user not found")

// CanManageEntries reports whether a role may delete entries or flip
// another handler's lifecycle state.
func CanManageEntries(role string) bool {
	return role == RoleSuperAdmin || role == RoleMISManager
}

// SeesAllBusinessUnits reports whether listings for this role span every
// unit; business unit admins and SPOCs are scoped to their own.
func SeesAllBusinessUnits(role string) bool {
	return role == RoleSuperAdmin || role == RoleMISManager || role == RoleServiceHandler
}

func nameTokens(name string) []string {
	return strings.Fields(strings.ToLower(strings.TrimSpace(name)))
}

// MatchByName resolves a free-text handler name against the user set.
// Exact case-insensitive match wins; failing that, the first user
// sharing any name token is returned. Handler names in entries are plain
// strings, not references, so this lookup is inherently fuzzy.
func MatchByName(users []*User, name string) (*User, bool) {
	target := strings.ToLower(strings.TrimSpace(name))
	if target == "" {
		return nil, false
	}

	for _, u := range users {
		if strings.ToLower(strings.TrimSpace(u.Name)) == target {
			return u, true
		}
	}

	targetTokens := nameTokens(name)
	for _, u := range users {
		userTokens := nameTokens(u.Name)
		for _, tt := range targetTokens {
			for _, ut := range userTokens {
				if tt == ut {
					return u, true
				}
			}
		}
	}

	return nil, false
}
