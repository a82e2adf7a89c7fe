package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/bloodbank/bloodbank-backend/pkg/logger"
)

type auditPruner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type AuditRetentionJobParams struct {
	Logger     *logger.Logger
	Repository auditPruner
	Retention  time.Duration
}

// NewAuditRetentionJob deletes audit rows older than the retention window.
func NewAuditRetentionJob(params AuditRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	if params.Retention <= 0 {
		return nil, fmt.Errorf("retention must be positive")
	}
	return &auditRetentionJob{
		logg:      params.Logger,
		repo:      params.Repository,
		retention: params.Retention,
		now:       time.Now,
	}, nil
}

type auditRetentionJob struct {
	logg      *logger.Logger
	repo      auditPruner
	retention time.Duration
	now       func() time.Time
}

func (j *auditRetentionJob) Name() string { return "audit-retention" }

func (j *auditRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("audit retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "audit retention cleanup complete")
	return nil
}
