package users

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/bloodbank/bloodbank-backend/pkg/db/models"
	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromModelHidesHashAndUsesUTC(t *testing.T) {
	east := time.FixedZone("east", 3*3600)
	login := time.Date(2026, 1, 2, 10, 0, 0, 0, east)
	row := &models.User{
		ID:           uuid.New(),
		FullName:     "Dana Scully",
		Email:        "dana@fbi.gov",
		PasswordHash: "$argon2id$secret",
		Role:         enums.UserRoleDoctor,
		LastLoginAt:  &login,
		CreatedAt:    login,
	}

	dto := FromModel(row)
	require.NotNil(t, dto)
	assert.Equal(t, time.UTC, dto.LastLoginAt.Location())
	assert.True(t, dto.LastLoginAt.Equal(login))

	raw, err := json.Marshal(dto)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "argon2id")
	assert.Nil(t, FromModel(nil))
}

func TestNewUserModelNormalizes(t *testing.T) {
	u := NewUser{FullName: "  Fox Mulder ", Email: " Fox@FBI.gov ", PasswordHash: "h"}.model()
	assert.Equal(t, "Fox Mulder", u.FullName)
	assert.Equal(t, "fox@fbi.gov", u.Email)
	assert.Equal(t, enums.UserRoleCustomer, u.Role)
}
