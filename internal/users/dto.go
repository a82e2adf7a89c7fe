package users

import (
	"strings"
	"time"

	"github.com/bloodbank/bloodbank-backend/pkg/db/models"
	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	"github.com/google/uuid"
)

// UserDTO is a user as the API shows it. The password hash never leaves the
// service.
type UserDTO struct {
	ID          uuid.UUID      `json:"id"`
	FullName    string         `json:"fullName"`
	Email       string         `json:"email"`
	Role        enums.UserRole `json:"role"`
	LastLoginAt *time.Time     `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// NewUser is a user about to be inserted, password already hashed.
type NewUser struct {
	FullName     string
	Email        string
	PasswordHash string
	Role         enums.UserRole
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	dto := UserDTO{
		ID:        u.ID,
		FullName:  u.FullName,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt.UTC(),
		UpdatedAt: u.UpdatedAt.UTC(),
	}
	if u.LastLoginAt != nil {
		at := u.LastLoginAt.UTC()
		dto.LastLoginAt = &at
	}
	return &dto
}

func FromModels(rows []models.User) []UserDTO {
	out := make([]UserDTO, len(rows))
	for i := range rows {
		out[i] = *FromModel(&rows[i])
	}
	return out
}

// model normalizes the fields and defaults a missing role to customer.
func (n NewUser) model() *models.User {
	u := &models.User{
		FullName:     strings.TrimSpace(n.FullName),
		Email:        NormalizeEmail(n.Email),
		PasswordHash: n.PasswordHash,
		Role:         n.Role,
	}
	if u.Role == "" {
		u.Role = enums.UserRoleCustomer
	}
	return u
}

// NormalizeEmail is the canonical form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
