package cron

import (
	"fmt"
	"time"

	"github.com/bloodbank/bloodbank-backend/pkg/logger"
	"github.com/bloodbank/bloodbank-backend/pkg/metrics"
)

// MaintenanceParams assemble the standard job set.
type MaintenanceParams struct {
	Logger         *logger.Logger
	Lock           Lock
	Audit          auditPruner
	AuditRetention time.Duration
	Balances       balanceLister
	Gauge          inventoryGauge
	Metrics        *metrics.JobMetrics
	Interval       time.Duration
	JobTimeout     time.Duration
}

// NewMaintenance builds a scheduler carrying audit retention (when a
// retention window is set) and the inventory gauge refresh.
func NewMaintenance(params MaintenanceParams) (*Service, error) {
	registry := NewRegistry()
	if params.AuditRetention > 0 {
		job, err := NewAuditRetentionJob(AuditRetentionJobParams{
			Logger:     params.Logger,
			Repository: params.Audit,
			Retention:  params.AuditRetention,
		})
		if err != nil {
			return nil, fmt.Errorf("audit retention job: %w", err)
		}
		if err := registry.Register(job); err != nil {
			return nil, err
		}
	}
	gaugeJob, err := NewInventoryGaugeJob(params.Balances, params.Gauge)
	if err != nil {
		return nil, fmt.Errorf("inventory gauge job: %w", err)
	}
	if err := registry.Register(gaugeJob); err != nil {
		return nil, err
	}

	return NewService(ServiceParams{
		Logger:     params.Logger,
		Registry:   registry,
		Lock:       params.Lock,
		Metrics:    params.Metrics,
		Interval:   params.Interval,
		JobTimeout: params.JobTimeout,
	})
}
