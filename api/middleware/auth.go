package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bloodbank/bloodbank-backend/api/responses"
	pkgAuth "github.com/bloodbank/bloodbank-backend/pkg/auth"
	"github.com/bloodbank/bloodbank-backend/pkg/auth/session"
	"github.com/bloodbank/bloodbank-backend/pkg/config"
	pkgerrors "github.com/bloodbank/bloodbank-backend/pkg/errors"
	"github.com/bloodbank/bloodbank-backend/pkg/logger"
)

// Auth admits requests carrying a valid access token whose session is still
// live, and records the caller in the request context.
func Auth(cfg config.JWTConfig, sessions session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := identify(r, cfg, sessions)
			if err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
					w.Header().Set("WWW-Authenticate", `Bearer realm="bloodbank"`)
				}
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			userID := claims.UserID.String()
			ctx := WithIdentity(r.Context(), userID, claims.Email, string(claims.Role), claims.ID)
			if logg != nil {
				ctx = logg.WithActor(ctx, userID, string(claims.Role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func identify(r *http.Request, cfg config.JWTConfig, sessions session.AccessSessionChecker) (*pkgAuth.AccessTokenClaims, error) {
	raw, ok := BearerToken(r)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	claims, err := pkgAuth.ParseAccessToken(cfg, raw)
	switch {
	case errors.Is(err, pkgAuth.ErrTokenExpired):
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "token expired")
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}

	if sessions == nil {
		return claims, nil
	}
	live, err := sessions.HasSession(r.Context(), claims.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "session lookup failed")
	}
	if !live {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "session ended")
	}
	return claims, nil
}

// BearerToken reads the Authorization header. The "Bearer" scheme word is
// optional and matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	value := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, rest, found := strings.Cut(value, " "); found && strings.EqualFold(scheme, "bearer") {
		value = strings.TrimSpace(rest)
	}
	return value, value != ""
}
