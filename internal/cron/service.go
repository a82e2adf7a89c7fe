package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bloodbank/bloodbank-backend/pkg/logger"
	"github.com/bloodbank/bloodbank-backend/pkg/metrics"
)

const defaultInterval = time.Hour

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.JobMetrics
	Interval time.Duration
	// JobTimeout bounds each job. Zero means half the interval.
	JobTimeout time.Duration
}

// Service runs the registered jobs once at start and then every interval.
// Replicas sharing Redis compete for the lock; only the winner runs a cycle.
type Service struct {
	logg       *logger.Logger
	jobs       []Job
	lock       Lock
	metrics    *metrics.JobMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

// Cycle summarizes one pass over the jobs.
type Cycle struct {
	Skipped bool
	Ran     int
	Failed  []string
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Lock == nil:
		return nil, errors.New("lock required")
	}
	s := &Service{
		logg:       params.Logger,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
	}
	if params.Registry != nil {
		s.jobs = params.Registry.Jobs()
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.jobTimeout <= 0 {
		s.jobTimeout = s.interval / 2
	}
	return s, nil
}

// Run blocks until ctx is canceled, which is a clean stop and returns nil.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "maintenance cycle failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "maintenance scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce runs every job under the lock. A job failure is recorded in the
// returned Cycle; only lock errors are returned as err.
func (s *Service) RunOnce(ctx context.Context) (Cycle, error) {
	if ctx.Err() != nil {
		return Cycle{Skipped: true}, nil
	}
	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return Cycle{}, fmt.Errorf("maintenance lock: %w", err)
	}
	if !held {
		s.logg.Info(ctx, "maintenance lock held elsewhere, skipping cycle")
		return Cycle{Skipped: true}, nil
	}
	defer func() {
		// release even when shutdown canceled ctx mid-cycle
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "maintenance lock release failed", err)
		}
	}()

	var cycle Cycle
	for _, job := range s.jobs {
		if ctx.Err() != nil {
			break
		}
		cycle.Ran++
		if err := s.runJob(ctx, job); err != nil {
			cycle.Failed = append(cycle.Failed, job.Name())
		}
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs_ran":    cycle.Ran,
		"jobs_failed": len(cycle.Failed),
	}), "maintenance cycle finished")
	return cycle, nil
}

func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	name := job.Name()
	ctx = s.logg.WithFields(ctx, map[string]any{"job": name, "event": "maintenance.job"})
	jobCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
		elapsed := time.Since(start)
		s.metrics.ObserveDuration(name, elapsed)
		ctx = s.logg.WithField(ctx, "duration_ms", elapsed.Milliseconds())
		if err != nil {
			s.metrics.IncFailure(name)
			s.logg.Error(ctx, "job failed", err)
			return
		}
		s.metrics.IncSuccess(name)
		s.logg.Info(ctx, "job completed")
	}()

	return job.Run(jobCtx)
}
