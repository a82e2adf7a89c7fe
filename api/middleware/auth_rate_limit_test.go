package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/bloodbank/bloodbank-backend/pkg/errors"
	"github.com/bloodbank/bloodbank-backend/pkg/redis"
)

type fakeWindows struct {
	mu      sync.Mutex
	hits    map[string]int64
	resetIn time.Duration
	err     error
}

func newFakeWindows() *fakeWindows {
	return &fakeWindows{hits: map[string]int64{}}
}

func (f *fakeWindows) FixedWindowAllow(_ context.Context, scope string, limit int64, window time.Duration) (redis.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.Window{}, f.err
	}
	f.hits[scope]++
	reset := f.resetIn
	if reset == 0 {
		reset = window
	}
	return redis.Window{Allowed: f.hits[scope] <= limit, Count: f.hits[scope], ResetIn: reset}, nil
}

func (f *fakeWindows) scopes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.hits))
	for k := range f.hits {
		out = append(out, k)
	}
	return out
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func postLogin(h http.Handler, body, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	if remote != "" {
		req.RemoteAddr = remote
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthRateLimitPassesBodyThrough(t *testing.T) {
	policy := RateLimitPolicy{Name: "login", Window: time.Minute, PerIP: 2, PerEmail: 2}
	const body = `{"email":"tester@example.com","password":"secret"}`
	handler := AuthRateLimit(policy, newFakeWindows(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if string(got) != body {
			t.Fatalf("body not restored: %s", got)
		}
		w.WriteHeader(http.StatusOK)
	}))

	if rec := postLogin(handler, body, "1.2.3.4:5678"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthRateLimitEmailDimension(t *testing.T) {
	store := newFakeWindows()
	store.resetIn = 1500 * time.Millisecond
	handler := AuthRateLimit(RateLimitPolicy{Name: "login", Window: time.Minute, PerEmail: 2}, store, nil)(okHandler())

	for i := 0; i < 2; i++ {
		if rec := postLogin(handler, `{"email":"blocked@example.com"}`, ""); rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d", i, rec.Code)
		}
	}
	rec := postLogin(handler, `{"email":" Blocked@Example.com "}`, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After rounded up to 2, got %q", got)
	}

	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeRateLimit) {
		t.Fatalf("unexpected code %s", payload.Error.Code)
	}

	for _, scope := range store.scopes() {
		if strings.Contains(scope, "@") {
			t.Fatalf("raw email leaked into scope %s", scope)
		}
	}
}

func TestAuthRateLimitIPDimension(t *testing.T) {
	handler := AuthRateLimit(RateLimitPolicy{Name: "register", Window: time.Minute, PerIP: 1}, newFakeWindows(), nil)(okHandler())

	if rec := postLogin(handler, `{}`, "5.6.7.8:1234"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec := postLogin(handler, `{}`, "5.6.7.8:9999")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected full window, got %q", rec.Header().Get("Retry-After"))
	}
	if rec := postLogin(handler, `{}`, "9.9.9.9:1"); rec.Code != http.StatusOK {
		t.Fatalf("other ip must not be limited, got %d", rec.Code)
	}
}

func TestAuthRateLimitSeparatesEmails(t *testing.T) {
	handler := AuthRateLimit(RateLimitPolicy{Name: "login", Window: time.Minute, PerEmail: 1}, newFakeWindows(), nil)(okHandler())

	for _, email := range []string{"a@example.com", "b@example.com"} {
		if rec := postLogin(handler, `{"email":"`+email+`"}`, ""); rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for %s, got %d", email, rec.Code)
		}
	}
}

func TestAuthRateLimitStoreFailure(t *testing.T) {
	store := newFakeWindows()
	store.err = errors.New("redis down")
	handler := AuthRateLimit(RateLimitPolicy{Window: time.Minute, PerIP: 5}, store, nil)(okHandler())

	if rec := postLogin(handler, `{}`, "1.1.1.1:1"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestAuthRateLimitDisabled(t *testing.T) {
	store := newFakeWindows()
	handler := AuthRateLimit(RateLimitPolicy{Name: "login", PerIP: 1}, store, nil)(okHandler())

	for i := 0; i < 3; i++ {
		if rec := postLogin(handler, `{}`, "1.1.1.1:1"); rec.Code != http.StatusOK {
			t.Fatalf("zero window must disable limiting, got %d", rec.Code)
		}
	}
	if len(store.scopes()) != 0 {
		t.Fatal("disabled policy must not touch the store")
	}
}
