package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bloodbank/bloodbank-backend/api/routes"
	"github.com/bloodbank/bloodbank-backend/internal/audit"
	"github.com/bloodbank/bloodbank-backend/internal/auth"
	"github.com/bloodbank/bloodbank-backend/internal/cron"
	"github.com/bloodbank/bloodbank-backend/internal/donations"
	"github.com/bloodbank/bloodbank-backend/internal/issuance"
	"github.com/bloodbank/bloodbank-backend/internal/ledger"
	"github.com/bloodbank/bloodbank-backend/internal/stats"
	"github.com/bloodbank/bloodbank-backend/internal/users"
	"github.com/bloodbank/bloodbank-backend/pkg/auth/session"
	"github.com/bloodbank/bloodbank-backend/pkg/config"
	"github.com/bloodbank/bloodbank-backend/pkg/db"
	"github.com/bloodbank/bloodbank-backend/pkg/instance"
	"github.com/bloodbank/bloodbank-backend/pkg/logger"
	"github.com/bloodbank/bloodbank-backend/pkg/metrics"
	"github.com/bloodbank/bloodbank-backend/pkg/migrate"
	"github.com/bloodbank/bloodbank-backend/pkg/redis"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
		Static:      map[string]any{"env": cfg.App.Env, "instance": instance.ID()},
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api stopped with error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return multierr.Append(err, dbClient.Close())
	}
	defer func() {
		err = multierr.Combine(err, redisClient.Close(), dbClient.Close())
	}()

	if err := migrate.AutoRun(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	sqlDB, err := dbClient.SQL()
	if err != nil {
		return err
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(sqlDB, dbClient.Dialect()),
	)
	bankMetrics := metrics.NewBankMetrics(registry)

	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		return err
	}
	if err := ledgerService.Seed(ctx); err != nil {
		return err
	}

	result, err := auth.EnsureAdmin(ctx, auth.AdminBootstrapParams{
		DB:             dbClient,
		Bootstrap:      cfg.Bootstrap,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "result", string(result)), "admin bootstrap finished")

	auditRepo := audit.NewRepository(dbClient.DB())
	auditWriter, err := audit.NewWriter(audit.WriterParams{
		Repository:   auditRepo,
		Logger:       logg,
		Metrics:      bankMetrics,
		QueueSize:    cfg.Audit.QueueSize,
		WriteTimeout: cfg.Audit.WriteTimeout,
		FlushTimeout: cfg.Audit.FlushTimeout,
	})
	if err != nil {
		return err
	}
	auditService, err := audit.NewService(auditRepo)
	if err != nil {
		return err
	}

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return err
	}

	usersRepo := users.NewRepository(dbClient.DB())
	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       usersRepo,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		Recorder:       auditWriter,
	})
	if err != nil {
		return err
	}
	registerService, err := auth.NewRegisterService(auth.RegisterServiceParams{
		DB:                    dbClient,
		PasswordConfig:        cfg.Password,
		AllowPrivilegedSignup: cfg.FeatureFlags.AllowPrivilegedSignup,
		Recorder:              auditWriter,
	})
	if err != nil {
		return err
	}
	userService, err := users.NewService(users.ServiceParams{
		DB:             dbClient,
		Repository:     usersRepo,
		PasswordConfig: cfg.Password,
		Recorder:       auditWriter,
		Sessions:       sessionManager,
	})
	if err != nil {
		return err
	}

	donationService, err := donations.NewService(donations.ServiceParams{
		DB:         dbClient,
		Repository: donations.NewRepository(dbClient.DB()),
		Ledger:     ledgerService,
		Recorder:   auditWriter,
		Metrics:    bankMetrics,
	})
	if err != nil {
		return err
	}
	issuanceService, err := issuance.NewService(issuance.ServiceParams{
		Ledger:   ledgerService,
		Recorder: auditWriter,
		Logger:   logg,
		Metrics:  bankMetrics,
	})
	if err != nil {
		return err
	}
	statsService, err := stats.NewService(ledgerService, donationService)
	if err != nil {
		return err
	}

	maintenance, err := buildMaintenance(cfg, logg, redisClient, auditRepo, ledgerService, bankMetrics, metrics.NewJobMetrics(registry))
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			DBPinger:    dbClient,
			RedisPinger: redisClient,
			RateLimiter: redisClient,
			Sessions:    sessionManager,
			Gatherer:    registry,
			HTTPMetrics: metrics.NewHTTPMetrics(registry),
			Auth:        authService,
			Register:    registerService,
			Ledger:      ledgerService,
			Donations:   donationService,
			Issuance:    issuanceService,
			Stats:       statsService,
			Audit:       auditService,
			Users:       userService,
		}),
	}

	// The audit writer outlives the server so entries recorded by in-flight
	// requests are still flushed.
	writerCtx, stopWriter := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWriter()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return auditWriter.Run(writerCtx)
	})
	if maintenance != nil {
		g.Go(func() error {
			return maintenance.Run(gctx)
		})
	}
	g.Go(func() error {
		logg.Info(logg.WithField(ctx, "addr", addr), "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		defer stopWriter()

		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildMaintenance returns nil when scheduled jobs are disabled for this
// process, e.g. when cmd/maintenance runs them instead.
func buildMaintenance(
	cfg *config.Config,
	logg *logger.Logger,
	redisClient *redis.Client,
	auditRepo audit.Repository,
	ledgerService ledger.Service,
	bankMetrics *metrics.BankMetrics,
	jobMetrics *metrics.JobMetrics,
) (*cron.Service, error) {
	if !cfg.Maintenance.Enabled {
		return nil, nil
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("maintenance"), cfg.Maintenance.LockTTL)
	if err != nil {
		return nil, err
	}
	return cron.NewMaintenance(cron.MaintenanceParams{
		Logger:         logg,
		Lock:           lock,
		Audit:          auditRepo,
		AuditRetention: cfg.Maintenance.AuditRetention(),
		Balances:       ledgerService,
		Gauge:          bankMetrics,
		Metrics:        jobMetrics,
		Interval:       cfg.Maintenance.Interval,
		JobTimeout:     cfg.Maintenance.JobTimeout,
	})
}
