package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bloodbank/bloodbank-backend/api/controllers"
	"github.com/bloodbank/bloodbank-backend/api/middleware"
	"github.com/bloodbank/bloodbank-backend/internal/audit"
	"github.com/bloodbank/bloodbank-backend/internal/auth"
	"github.com/bloodbank/bloodbank-backend/internal/donations"
	"github.com/bloodbank/bloodbank-backend/internal/issuance"
	"github.com/bloodbank/bloodbank-backend/internal/ledger"
	"github.com/bloodbank/bloodbank-backend/internal/stats"
	"github.com/bloodbank/bloodbank-backend/internal/users"
	"github.com/bloodbank/bloodbank-backend/pkg/auth/session"
	"github.com/bloodbank/bloodbank-backend/pkg/config"
	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	"github.com/bloodbank/bloodbank-backend/pkg/logger"
	"github.com/bloodbank/bloodbank-backend/pkg/metrics"
)

// Dependencies holds everything the HTTP surface is wired to.
type Dependencies struct {
	DBPinger    controllers.Pinger
	RedisPinger controllers.Pinger
	RateLimiter middleware.RateLimiterStore
	Sessions    session.AccessSessionChecker
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics

	Auth      auth.Service
	Register  auth.RegisterService
	Ledger    ledger.Service
	Donations donations.Service
	Issuance  issuance.Service
	Stats     stats.Service
	Audit     audit.Service
	Users     users.Service
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.HTTPMetrics),
		middleware.CORS(cfg.CORS),
	)

	limits := cfg.AuthRateLimit
	loginPolicy := middleware.RateLimitPolicy{
		Name:     "login",
		Window:   limits.LoginWindow,
		PerIP:    limits.LoginIPLimit,
		PerEmail: limits.LoginEmailLimit,
	}
	registerPolicy := middleware.RateLimitPolicy{
		Name:     "register",
		Window:   limits.RegisterWindow,
		PerIP:    limits.RegisterIPLimit,
		PerEmail: limits.RegisterEmailLimit,
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DBPinger, deps.RedisPinger))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(registerPolicy, deps.RateLimiter, logg)).Post("/register", controllers.AuthRegister(deps.Register, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, deps.RateLimiter, logg)).Post("/login", controllers.AuthLogin(deps.Auth, logg))
		r.Post("/refresh", controllers.AuthRefresh(deps.Auth, cfg.JWT, logg))
		r.Post("/logout", controllers.AuthLogout(deps.Auth, cfg.JWT, logg))
	})

	r.Get("/inventory", controllers.InventoryList(deps.Ledger, logg))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))

		r.With(middleware.RequireCapability(enums.CapabilityInventoryRead, logg)).
			Get("/inventory/summary", controllers.InventorySummary(deps.Ledger, logg))

		r.Route("/donations", func(r chi.Router) {
			r.With(middleware.RequireCapability(enums.CapabilityDonationCreate, logg)).Post("/", controllers.DonationCreate(deps.Donations, logg))
			r.With(middleware.RequireCapability(enums.CapabilityDonationRead, logg)).Get("/", controllers.DonationList(deps.Donations, logg))
		})

		r.With(middleware.RequireCapability(enums.CapabilityIssueCreate, logg)).Post("/issue", controllers.Issue(deps.Issuance, logg))
		r.With(middleware.RequireCapability(enums.CapabilityEmergencyIssue, logg)).Post("/emergency", controllers.Emergency(deps.Issuance, logg))
		r.With(middleware.RequireCapability(enums.CapabilityStatsRead, logg)).Get("/stats", controllers.Stats(deps.Stats, logg))

		r.Route("/admin", func(r chi.Router) {
			r.With(middleware.RequireCapability(enums.CapabilityAuditRead, logg)).Get("/logs", controllers.AdminLogs(deps.Audit, logg))

			r.Route("/users", func(r chi.Router) {
				r.Use(middleware.RequireCapability(enums.CapabilityUsersManage, logg))
				r.Get("/", controllers.AdminUsersList(deps.Users, logg))
				r.Post("/", controllers.AdminUsersCreate(deps.Users, logg))
				r.Patch("/{userId}", controllers.AdminUsersUpdate(deps.Users, logg))
				r.Delete("/{userId}", controllers.AdminUsersDelete(deps.Users, logg))
			})
		})
	})

	return r
}
