package auth

import (
	"errors"

	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload is what the caller knows when minting.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Email  string
	Role   enums.UserRole
	// JTI doubles as the session key. Empty mints a new one.
	JTI string
}

// AccessTokenClaims is the body of every access token.
type AccessTokenClaims struct {
	UserID uuid.UUID      `json:"user_id"`
	Email  string         `json:"email"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after the registered-claim checks. It pins the subject to the
// user id and requires a session id and a known role.
func (c AccessTokenClaims) Validate() error {
	switch {
	case c.UserID == uuid.Nil:
		return errors.New("token has no user")
	case c.Subject != c.UserID.String():
		return errors.New("token subject does not match user")
	case c.ID == "":
		return errors.New("token has no session id")
	case !c.Role.IsValid():
		return errors.New("token carries an unknown role")
	}
	return nil
}
