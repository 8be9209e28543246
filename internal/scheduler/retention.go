package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	obsmetrics "github.com/smallbiznis/sheetseries/internal/observability/metrics"
	tsdomain "github.com/smallbiznis/sheetseries/internal/timeseries/domain"
	"go.uber.org/zap"
)

// RetentionJob purges points older than the configured number of months.
func (s *Scheduler) RetentionJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobRetention)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	res, err := s.points.Purge(ctx, tsdomain.PurgeRequest{Months: s.cfg.RetentionMonths})
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.retention.failed", JobRetention, "", err)
		return err
	}
	run.AddProcessed(int(res.Deleted))
	obsmetrics.Scheduler().AddBatchProcessed(JobRetention, "points", int(res.Deleted))
	s.metrics.RecordPurge(ctx, JobRetention, res.Deleted)
	s.logger(ctx).Info("scheduler.retention.purged",
		zap.String("cutoff", res.Cutoff),
		zap.Int64("deleted", res.Deleted),
	)
	return nil
}

// StartRetention schedules RetentionJob on the configured cron spec. The
// returned cron must be stopped by the caller.
func (s *Scheduler) StartRetention(ctx context.Context) (*cron.Cron, error) {
	loc, err := time.LoadLocation(s.cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("retention timezone %q: %w", s.cfg.Timezone, err)
	}
	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(s.cfg.RetentionCron, func() {
		if err := s.runJob(ctx, JobRetention, s.cfg.JobTimeout, s.RetentionJob); err != nil {
			s.log.Warn("retention run failed", zap.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("retention cron %q: %w", s.cfg.RetentionCron, err)
	}
	c.Start()
	return c, nil
}
