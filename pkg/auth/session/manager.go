// Package session keeps one Redis record per issued access token. The record
// holds the refresh token, so deleting it revokes both tokens at once.
package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bloodbank/bloodbank-backend/pkg/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const refreshTokenBytes = 32

var ErrInvalidRefreshToken = errors.New("invalid refresh token")

// Store is the Redis surface sessions need.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
	AddToSet(ctx context.Context, key string, ttl time.Duration, members ...string) error
	SetMembers(ctx context.Context, key string) ([]string, error)
	SessionKey(accessID string) string
	UserSessionsKey(userID string) string
}

// AccessSessionChecker is what the auth middleware asks on every request.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

type entry struct {
	UserID    string    `json:"user_id"`
	Refresh   string    `json:"refresh_token"`
	IssuedAt  time.Time `json:"issued_at"`
	RotatedAt time.Time `json:"rotated_at,omitzero"`
}

type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager requires the refresh lifetime to outlast the access token, or a
// client could never refresh.
func NewManager(store Store, cfg config.JWTConfig) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	refreshTTL := cfg.RefreshTokenTTL()
	accessTTL := time.Duration(cfg.ExpirationMinutes) * time.Minute
	switch {
	case refreshTTL <= 0:
		return nil, errors.New("refresh token ttl must be positive")
	case refreshTTL <= accessTTL:
		return nil, fmt.Errorf("refresh token ttl %s must exceed access token ttl %s", refreshTTL, accessTTL)
	}
	return &Manager{store: store, ttl: refreshTTL, now: time.Now}, nil
}

// NewAccessID returns a fresh jti.
func NewAccessID() string {
	return uuid.NewString()
}

// Generate opens a session for accessID and returns its refresh token.
func (m *Manager) Generate(ctx context.Context, accessID, userID string) (string, error) {
	if blank(accessID) || blank(userID) {
		return "", errors.New("access id and user id are required")
	}
	refresh, err := newRefreshToken()
	if err != nil {
		return "", err
	}
	if err := m.save(ctx, accessID, entry{UserID: userID, Refresh: refresh, IssuedAt: m.now().UTC()}); err != nil {
		return "", err
	}
	return refresh, nil
}

// Rotate trades the refresh token of oldAccessID for a new session. The old
// record is claimed with a compare-and-delete, so two concurrent refreshes
// with the same token cannot both succeed.
func (m *Manager) Rotate(ctx context.Context, oldAccessID, presented string) (newAccessID, refresh, userID string, err error) {
	if blank(oldAccessID) || blank(presented) {
		return "", "", "", ErrInvalidRefreshToken
	}
	key := m.store.SessionKey(oldAccessID)

	raw, err := m.store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		return "", "", "", ErrInvalidRefreshToken
	}
	if err != nil {
		return "", "", "", fmt.Errorf("load session: %w", err)
	}
	var prev entry
	if json.Unmarshal([]byte(raw), &prev) != nil {
		return "", "", "", ErrInvalidRefreshToken
	}
	if subtle.ConstantTimeCompare([]byte(prev.Refresh), []byte(presented)) != 1 {
		return "", "", "", ErrInvalidRefreshToken
	}

	claimed, err := m.store.CompareAndDelete(ctx, key, raw)
	if err != nil {
		return "", "", "", fmt.Errorf("claim session: %w", err)
	}
	if !claimed {
		return "", "", "", ErrInvalidRefreshToken
	}

	refresh, err = newRefreshToken()
	if err != nil {
		return "", "", "", err
	}
	newAccessID = NewAccessID()
	next := entry{UserID: prev.UserID, Refresh: refresh, IssuedAt: prev.IssuedAt, RotatedAt: m.now().UTC()}
	if err := m.save(ctx, newAccessID, next); err != nil {
		return "", "", "", err
	}
	return newAccessID, refresh, prev.UserID, nil
}

// Revoke ends the session of accessID. Revoking twice is not an error.
func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	if blank(accessID) {
		return errors.New("access id is required")
	}
	return m.store.Del(ctx, m.store.SessionKey(accessID))
}

// RevokeUser ends every session issued to userID.
func (m *Manager) RevokeUser(ctx context.Context, userID string) error {
	if blank(userID) {
		return errors.New("user id is required")
	}
	index := m.store.UserSessionsKey(userID)
	accessIDs, err := m.store.SetMembers(ctx, index)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	keys := make([]string, 0, len(accessIDs)+1)
	for _, id := range accessIDs {
		keys = append(keys, m.store.SessionKey(id))
	}
	return m.store.Del(ctx, append(keys, index)...)
}

func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	if blank(accessID) {
		return false, errors.New("access id is required")
	}
	_, err := m.store.Get(ctx, m.store.SessionKey(accessID))
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

func (m *Manager) save(ctx context.Context, accessID string, e entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := m.store.Set(ctx, m.store.SessionKey(accessID), string(payload), m.ttl); err != nil {
		return err
	}
	if err := m.store.AddToSet(ctx, m.store.UserSessionsKey(e.UserID), m.ttl, accessID); err != nil {
		return fmt.Errorf("index session: %w", err)
	}
	return nil
}

func newRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("refresh token entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
