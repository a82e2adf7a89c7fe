package auth

import (
	"github.com/bloodbank/bloodbank-backend/internal/users"
	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	"github.com/google/uuid"
)

// LoginRequest captures the user credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	IP       string `json:"-"`
}

// LoginResponse contains the tokens and user produced by a successful login.
type LoginResponse struct {
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
	User         *users.UserDTO `json:"user"`
}

// RefreshRequest rotates the session identified by the (possibly expired)
// access token's jti.
type RefreshRequest struct {
	AccessTokenID string
	RefreshToken  string
}

// TokenPair is returned after a refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// LogoutRequest identifies the session to revoke and who is leaving.
type LogoutRequest struct {
	AccessTokenID string
	UserID        uuid.UUID
	Email         string
	Role          enums.UserRole
	IP            string
}
