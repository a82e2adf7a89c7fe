package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/bloodbank/bloodbank-backend/internal/audit"
	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	"github.com/google/uuid"
)

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxRole   contextKey = "actor_role"
	ctxEmail  contextKey = "actor_email"
	ctxJTI    contextKey = "jti"
)

func UserIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxUserID)
}

func RoleFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxRole)
}

func EmailFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxEmail)
}

// JTIFromContext returns the access token id of the authenticated session.
func JTIFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxJTI)
}

// WithIdentity injects the authenticated caller into the context.
func WithIdentity(ctx context.Context, userID, email, role, jti string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxEmail, email)
	ctx = context.WithValue(ctx, ctxRole, role)
	return context.WithValue(ctx, ctxJTI, jti)
}

// ActorFromRequest builds the audit actor for the caller. Anonymous requests
// yield an actor carrying only the client IP.
func ActorFromRequest(r *http.Request) audit.Actor {
	ctx := r.Context()
	actor := audit.Actor{
		Email: EmailFromContext(ctx),
		Role:  enums.UserRole(RoleFromContext(ctx)),
		IP:    ClientIP(r),
	}
	if id, err := uuid.Parse(UserIDFromContext(ctx)); err == nil {
		actor.ID = id
	}
	return actor
}

// ClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return first
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
