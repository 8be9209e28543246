package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sheetseries/internal/clock"
	"github.com/smallbiznis/sheetseries/internal/config"
	"github.com/smallbiznis/sheetseries/internal/fetcher"
	ingestdomain "github.com/smallbiznis/sheetseries/internal/ingestion/domain"
	rundomain "github.com/smallbiznis/sheetseries/internal/ingestrun/domain"
	obsmetrics "github.com/smallbiznis/sheetseries/internal/observability/metrics"
	tsdomain "github.com/smallbiznis/sheetseries/internal/timeseries/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobAutoIngest = "auto_ingest"
	JobRetention  = "retention"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock `optional:"true"`
	Registry  *config.ClientRegistry
	Ingestion ingestdomain.Service
	Points    tsdomain.Service
	Metrics   *obsmetrics.Metrics `optional:"true"`
	Config    Config              `optional:"true"`
}

type Scheduler struct {
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	clock     clock.Clock
	registry  *config.ClientRegistry
	ingestion ingestdomain.Service
	points    tsdomain.Service
	metrics   *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Registry == nil || p.Ingestion == nil || p.Points == nil {
		return nil, ErrInvalidConfig
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		genID:     p.GenID,
		clock:     clk,
		registry:  p.Registry,
		ingestion: p.Ingestion,
		points:    p.Points,
		metrics:   p.Metrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick picks up where this one stopped
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	if s.isJobEnabled(JobAutoIngest) {
		err = errors.Join(err, s.runJob(parent, JobAutoIngest, s.cfg.JobTimeout, s.AutoIngestJob))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// empty list enables every job
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// AutoIngestJob pulls the newest attachment of every registered stream and
// ingests the ones whose message has not been ingested yet.
func (s *Scheduler) AutoIngestJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobAutoIngest)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	var jobErr error
	for _, sel := range s.registry.Get().Selectors() {
		if err := ctx.Err(); err != nil {
			return errors.Join(jobErr, err)
		}

		region := ""
		if sel.Region != nil {
			region = *sel.Region
		}
		res, err := s.ingestion.IngestFromInbox(s.withLogContext(ctx, sel.Client), ingestdomain.InboxRequest{
			Source:        rundomain.SourceScheduler,
			Client:        sel.Client,
			Region:        region,
			SubjectHint:   s.cfg.SubjectHint,
			LookbackHours: s.cfg.LookbackHours,
			SkipIngested:  true,
		})
		switch {
		case errors.Is(err, fetcher.ErrNoAttachment):
			s.logger(ctx).Debug("scheduler.selector.no_attachment",
				zap.String("client", sel.Client),
				zap.String("region", region),
			)
			continue
		case err != nil:
			s.logSchedulerError(ctx, run, "scheduler.selector.failed", JobAutoIngest, sel.Client, err,
				zap.String("region", region),
			)
			jobErr = errors.Join(jobErr, fmt.Errorf("%s/%s: %w", sel.Client, region, err))
			continue
		case res.AlreadyIngested:
			continue
		}

		run.AddProcessed(1)
		obsmetrics.Scheduler().AddBatchProcessed(JobAutoIngest, "workbooks", 1)
		s.logger(ctx).Info("scheduler.selector.ingested",
			zap.String("client", sel.Client),
			zap.String("region", region),
			zap.String("message_id", res.MessageID),
			zap.Int("rows_written", res.RowsWritten),
		)
	}
	return jobErr
}
