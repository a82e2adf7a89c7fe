package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bloodbank/bloodbank-backend/internal/audit"
	"github.com/bloodbank/bloodbank-backend/internal/cron"
	"github.com/bloodbank/bloodbank-backend/internal/ledger"
	"github.com/bloodbank/bloodbank-backend/pkg/config"
	"github.com/bloodbank/bloodbank-backend/pkg/db"
	"github.com/bloodbank/bloodbank-backend/pkg/instance"
	"github.com/bloodbank/bloodbank-backend/pkg/logger"
	"github.com/bloodbank/bloodbank-backend/pkg/metrics"
	"github.com/bloodbank/bloodbank-backend/pkg/migrate"
	"github.com/bloodbank/bloodbank-backend/pkg/redis"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// The maintenance worker runs the scheduled jobs outside the API process.
// Deployments that use it set BLOODBANK_MAINTENANCE_ENABLED=false on the API.
// With -once it runs a single cycle and exits, for external schedulers.
func main() {
	once := flag.Bool("once", false, "run one maintenance cycle and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "maintenance"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "maintenance",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
		Static:      map[string]any{"env": cfg.App.Env, "instance": instance.ID()},
	})

	if err := run(cfg, logg, *once); err != nil {
		logg.Error(context.Background(), "maintenance worker stopped with error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger, once bool) (err error) {
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

	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("maintenance"), cfg.Maintenance.LockTTL)
	if err != nil {
		return err
	}
	service, err := cron.NewMaintenance(cron.MaintenanceParams{
		Logger:         logg,
		Lock:           lock,
		Audit:          audit.NewRepository(dbClient.DB()),
		AuditRetention: cfg.Maintenance.AuditRetention(),
		Balances:       ledgerService,
		Gauge:          metrics.NewBankMetrics(registry),
		Metrics:        metrics.NewJobMetrics(registry),
		Interval:       cfg.Maintenance.Interval,
		JobTimeout:     cfg.Maintenance.JobTimeout,
	})
	if err != nil {
		return err
	}

	if once {
		cycle, err := service.RunOnce(ctx)
		if err != nil {
			return err
		}
		if len(cycle.Failed) > 0 {
			return fmt.Errorf("maintenance jobs failed: %v", cycle.Failed)
		}
		return nil
	}

	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logg.Info(ctx, "starting maintenance worker")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return service.Run(gctx)
	})
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logg.Info(ctx, "maintenance worker shut down gracefully")
	return nil
}
