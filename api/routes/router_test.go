package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bloodbank/bloodbank-backend/internal/audit"
	"github.com/bloodbank/bloodbank-backend/internal/donations"
	"github.com/bloodbank/bloodbank-backend/internal/issuance"
	"github.com/bloodbank/bloodbank-backend/internal/ledger"
	"github.com/bloodbank/bloodbank-backend/internal/stats"
	"github.com/bloodbank/bloodbank-backend/internal/users"
	pkgAuth "github.com/bloodbank/bloodbank-backend/pkg/auth"
	"github.com/bloodbank/bloodbank-backend/pkg/config"
	"github.com/bloodbank/bloodbank-backend/pkg/db/dbtest"
	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	"github.com/bloodbank/bloodbank-backend/pkg/logger"
	"github.com/bloodbank/bloodbank-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubSessions struct{}

func (stubSessions) HasSession(ctx context.Context, accessID string) (bool, error) {
	return true, nil
}

type testServer struct {
	handler http.Handler
	cfg     *config.Config
	users   users.Service
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	client := dbtest.NewClient(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	reg := prometheus.NewRegistry()
	bank := metrics.NewBankMetrics(reg)

	cfg := &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "test-secret", Issuer: "bloodbank", ExpirationMinutes: 10, RefreshTokenTTLMinutes: 60},
	}

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(client.DB()))
	require.NoError(t, err)
	donationSvc, err := donations.NewService(donations.ServiceParams{
		DB:         client,
		Repository: donations.NewRepository(client.DB()),
		Ledger:     ledgerSvc,
		Metrics:    bank,
	})
	require.NoError(t, err)
	issuanceSvc, err := issuance.NewService(issuance.ServiceParams{Ledger: ledgerSvc, Logger: logg, Metrics: bank})
	require.NoError(t, err)
	statsSvc, err := stats.NewService(ledgerSvc, donationSvc)
	require.NoError(t, err)
	auditSvc, err := audit.NewService(audit.NewRepository(client.DB()))
	require.NoError(t, err)
	userSvc, err := users.NewService(users.ServiceParams{DB: client, Repository: users.NewRepository(client.DB())})
	require.NoError(t, err)

	handler := NewRouter(cfg, logg, Dependencies{
		DBPinger:    client,
		RedisPinger: stubPinger{},
		Sessions:    stubSessions{},
		Gatherer:    reg,
		HTTPMetrics: metrics.NewHTTPMetrics(reg),
		Ledger:      ledgerSvc,
		Donations:   donationSvc,
		Issuance:    issuanceSvc,
		Stats:       statsSvc,
		Audit:       auditSvc,
		Users:       userSvc,
	})
	return testServer{handler: handler, cfg: cfg, users: userSvc}
}

func (s testServer) token(t *testing.T, role enums.UserRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(s.cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Email:  string(role) + "@example.com",
		Role:   role,
	})
	require.NoError(t, err)
	return token
}

// member creates a real user and returns a token issued to it.
func (s testServer) member(t *testing.T, role enums.UserRole) string {
	t.Helper()
	u, err := s.users.Create(context.Background(), users.CreateInput{
		FullName: "Staff " + string(role),
		Email:    string(role) + "-" + uuid.NewString()[:8] + "@example.com",
		Password: "correct-horse",
		Role:     role,
	})
	require.NoError(t, err)
	token, err := pkgAuth.MintAccessToken(s.cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: u.ID,
		Email:  u.Email,
		Role:   u.Role,
	})
	require.NoError(t, err)
	return token
}

func (s testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func unitsOf(t *testing.T, rec *httptest.ResponseRecorder, bt enums.BloodType) int {
	t.Helper()
	var env struct {
		Data []struct {
			BloodType string `json:"bloodType"`
			Units     int    `json:"units"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	for _, row := range env.Data {
		if row.BloodType == string(bt) {
			return row.Units
		}
	}
	t.Fatalf("blood type %s missing from inventory", bt)
	return 0
}

func TestPublicRoutes(t *testing.T) {
	srv := newTestServer(t)

	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/health/live", "", "").Code)
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/health/ready", "", "").Code)

	inv := srv.do(t, http.MethodGet, "/inventory", "", "")
	require.Equal(t, http.StatusOK, inv.Code)
	assert.Equal(t, 0, unitsOf(t, inv, enums.BloodTypeONeg))

	metricsRec := srv.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, metricsRec.Code)
	assert.Contains(t, metricsRec.Body.String(), "bloodbank_http_request_duration_seconds")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/inventory/summary"},
		{http.MethodPost, "/donations"},
		{http.MethodGet, "/donations"},
		{http.MethodPost, "/issue"},
		{http.MethodPost, "/emergency"},
		{http.MethodGet, "/stats"},
		{http.MethodGet, "/admin/logs"},
		{http.MethodGet, "/admin/users"},
	} {
		rec := srv.do(t, route.method, route.path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", route.method, route.path)
	}
}

func TestCapabilityMatrix(t *testing.T) {
	srv := newTestServer(t)
	customer := srv.token(t, enums.UserRoleCustomer)
	doctor := srv.token(t, enums.UserRoleDoctor)
	admin := srv.token(t, enums.UserRoleAdmin)

	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/inventory/summary", customer, "").Code)
	assert.Equal(t, http.StatusForbidden, srv.do(t, http.MethodPost, "/issue", customer, `{"bloodType":"A+","units":1}`).Code)
	assert.Equal(t, http.StatusForbidden, srv.do(t, http.MethodGet, "/donations", customer, "").Code)
	assert.Equal(t, http.StatusForbidden, srv.do(t, http.MethodGet, "/stats", customer, "").Code)

	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/donations", doctor, "").Code)
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/stats", doctor, "").Code)
	assert.Equal(t, http.StatusForbidden, srv.do(t, http.MethodGet, "/admin/logs", doctor, "").Code)
	assert.Equal(t, http.StatusForbidden, srv.do(t, http.MethodGet, "/admin/users", doctor, "").Code)

	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/admin/logs", admin, "").Code)
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/admin/users", admin, "").Code)
}

func TestDonateIssueAndEmergencyFlow(t *testing.T) {
	srv := newTestServer(t)
	doctor := srv.member(t, enums.UserRoleDoctor)

	for _, donor := range []string{"D-1", "D-2", "D-3"} {
		body := `{"donorId":"` + donor + `","donorName":"Donor","bloodType":"O-","donatedAt":"2024-05-01T08:00:00Z"}`
		rec := srv.do(t, http.MethodPost, "/donations", doctor, body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	dup := srv.do(t, http.MethodPost, "/donations", doctor, `{"donorId":"D-1","donorName":"Again","bloodType":"O-","donatedAt":"2024-05-01T08:00:00Z"}`)
	require.Equal(t, http.StatusConflict, dup.Code, dup.Body.String())
	assert.Equal(t, 3, unitsOf(t, srv.do(t, http.MethodGet, "/inventory", "", ""), enums.BloodTypeONeg))

	issued := srv.do(t, http.MethodPost, "/issue", doctor, `{"bloodType":"O-","units":2}`)
	require.Equal(t, http.StatusOK, issued.Code, issued.Body.String())
	assert.JSONEq(t, `{"data":{"used":{"type":"O-","units":2},"needAlternative":false}}`, issued.Body.String())

	short := srv.do(t, http.MethodPost, "/issue", doctor, `{"bloodType":"O-","units":5}`)
	require.Equal(t, http.StatusConflict, short.Code)
	assert.Contains(t, short.Body.String(), `"needAlternative":true`)
	assert.Equal(t, 1, unitsOf(t, srv.do(t, http.MethodGet, "/inventory", "", ""), enums.BloodTypeONeg))

	drained := srv.do(t, http.MethodPost, "/emergency", doctor, "")
	require.Equal(t, http.StatusOK, drained.Code)
	assert.JSONEq(t, `{"data":{"issued":1,"type":"O-"}}`, drained.Body.String())

	empty := srv.do(t, http.MethodPost, "/emergency", doctor, "")
	require.Equal(t, http.StatusConflict, empty.Code)
	assert.JSONEq(t, `{"data":{"reason":"EMPTY","message":"No O- units available."}}`, empty.Body.String())

	list := srv.do(t, http.MethodGet, "/donations?bloodType=O-&pageSize=2", doctor, "")
	require.Equal(t, http.StatusOK, list.Code)
	var page struct {
		Data struct {
			Items []json.RawMessage `json:"items"`
			Total int               `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &page))
	assert.Equal(t, 3, page.Data.Total)
	assert.Len(t, page.Data.Items, 2)
}

func TestDonationByTokenWithoutUserRow(t *testing.T) {
	srv := newTestServer(t)
	orphan := srv.token(t, enums.UserRoleAdmin)

	rec := srv.do(t, http.MethodPost, "/donations", orphan,
		`{"donorId":"D-9","donorName":"Donor","bloodType":"B+","donatedAt":"2024-06-01T08:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 1, unitsOf(t, srv.do(t, http.MethodGet, "/inventory", "", ""), enums.BloodTypeBPos))
}

func TestIssueHasNoUpperUnitBound(t *testing.T) {
	srv := newTestServer(t)
	doctor := srv.member(t, enums.UserRoleDoctor)

	rec := srv.do(t, http.MethodPost, "/issue", doctor, `{"bloodType":"A+","units":1001}`)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"needAlternative":true`)

	rec = srv.do(t, http.MethodPost, "/issue", doctor, `{"bloodType":"A+","units":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
