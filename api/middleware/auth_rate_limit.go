package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bloodbank/bloodbank-backend/api/responses"
	pkgerrors "github.com/bloodbank/bloodbank-backend/pkg/errors"
	"github.com/bloodbank/bloodbank-backend/pkg/logger"
	"github.com/bloodbank/bloodbank-backend/pkg/redis"
)

// emailPeekLimit bounds how much of the body is buffered to find the email.
const emailPeekLimit = 64 << 10

// RateLimiterStore counts hits in fixed windows.
type RateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (redis.Window, error)
}

// RateLimitPolicy throttles one auth route by client IP and by the email in
// the JSON body. A zero limit disables that dimension.
type RateLimitPolicy struct {
	Name     string
	Window   time.Duration
	PerIP    int
	PerEmail int
}

func (p RateLimitPolicy) active() bool {
	return p.Window > 0 && (p.PerIP > 0 || p.PerEmail > 0)
}

type rateBucket struct {
	dimension string
	subject   string
	limit     int
}

// buckets lists the counters a request hits. The body is restored for the
// next handler.
func (p RateLimitPolicy) buckets(r *http.Request) ([]rateBucket, error) {
	var out []rateBucket
	if p.PerIP > 0 {
		if ip := ClientIP(r); ip != "" {
			out = append(out, rateBucket{dimension: "ip", subject: ip, limit: p.PerIP})
		}
	}
	if p.PerEmail > 0 && r.Body != nil {
		head, err := io.ReadAll(io.LimitReader(r.Body, emailPeekLimit))
		if err != nil {
			return nil, err
		}
		r.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}

		if email := emailFromJSON(head); email != "" {
			out = append(out, rateBucket{dimension: "email", subject: digest(email), limit: p.PerEmail})
		}
	}
	return out, nil
}

func (b rateBucket) scope(policy string) string {
	return b.dimension + ":" + policy + ":" + b.subject
}

// AuthRateLimit rejects a request with 429 once any of its buckets is over
// the limit. Retry-After carries the time left in that window.
func AuthRateLimit(policy RateLimitPolicy, store RateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	name := strings.ToLower(strings.TrimSpace(policy.Name))
	if name == "" {
		name = "auth"
	}

	return func(next http.Handler) http.Handler {
		if store == nil || !policy.active() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			buckets, err := policy.buckets(r)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body"))
				return
			}

			for _, b := range buckets {
				win, err := store.FixedWindowAllow(ctx, b.scope(name), int64(b.limit), policy.Window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiter unavailable"))
					return
				}
				if win.Allowed {
					continue
				}

				retry := win.ResetIn
				if retry <= 0 {
					retry = policy.Window
				}
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"policy":      name,
						"dimension":   b.dimension,
						"subject":     b.subject,
						"hits":        win.Count,
						"limit":       b.limit,
						"retry_after": retry.String(),
					}), "auth.rate_limited")
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func emailFromJSON(body []byte) string {
	var payload struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(payload.Email))
}

// digest keeps raw emails out of Redis keys and logs.
func digest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:12])
}
