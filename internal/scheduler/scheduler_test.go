package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/sheetseries/internal/fetcher"
	ingestdomain "github.com/smallbiznis/sheetseries/internal/ingestion/domain"
	obsmetrics "github.com/smallbiznis/sheetseries/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

// blockingIngestion holds every inbox pull until the job deadline fires.
type blockingIngestion struct {
	stubIngestion
}

func (b *blockingIngestion) IngestFromInbox(ctx context.Context, req ingestdomain.InboxRequest) (*ingestdomain.Result, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func newMeteredScheduler(t *testing.T, ingestion ingestdomain.Service) (*Scheduler, *prometheus.Registry, *observer.ObservedLogs) {
	t.Helper()
	s := newTestScheduler(t, ingestion, &stubPoints{}, Config{})

	registry := prometheus.NewRegistry()
	obsmetrics.ResetSchedulerMetricsForTest()
	t.Cleanup(swapPrometheusRegistry(registry))
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{ServiceName: "sheetseries", Environment: "test"})

	core, logs := observer.New(zapcore.DebugLevel)
	s.log = zap.New(core)
	return s, registry, logs
}

func TestRunJobTreatsDeadlineAsSoft(t *testing.T) {
	ingestion := &blockingIngestion{}
	s, registry, logs := newMeteredScheduler(t, ingestion)

	err := s.runJob(context.Background(), JobAutoIngest, 5*time.Millisecond, s.AutoIngestJob)
	require.NoError(t, err)
	// the first selector held the whole budget
	assert.Len(t, ingestion.requests, 1)

	assert.Equal(t, 1.0, counterValue(t, registry, "sheetseries_scheduler_job_timeouts_total",
		map[string]string{"job": JobAutoIngest}))
	assert.Equal(t, 1.0, counterValue(t, registry, "sheetseries_scheduler_job_errors_total",
		map[string]string{"job": JobAutoIngest, "reason": obsmetrics.SchedulerJobReasonDeadlineExceeded}))

	timedOut := logs.FilterMessage("job timed out").All()
	require.Len(t, timedOut, 1)
	assert.Equal(t, zapcore.WarnLevel, timedOut[0].Level)
	assert.Equal(t, JobAutoIngest, timedOut[0].ContextMap()["job"])

	failed := logs.FilterMessage("scheduler.selector.failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "Acme", failed[0].ContextMap()["client"])

	finish := logs.FilterMessage("scheduler.job.finish").All()
	require.Len(t, finish, 1)
	assert.Equal(t, zapcore.WarnLevel, finish[0].Level)
}

func TestRunJobWrapsHardFailures(t *testing.T) {
	s, registry, _ := newMeteredScheduler(t, &stubIngestion{})

	err := s.runJob(context.Background(), JobRetention, time.Second, func(context.Context) error {
		return fmt.Errorf("purge: %w", gorm.ErrDuplicatedKey)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
	assert.Contains(t, err.Error(), JobRetention+": ")

	assert.Equal(t, 1.0, counterValue(t, registry, "sheetseries_scheduler_job_errors_total",
		map[string]string{"job": JobRetention, "reason": obsmetrics.SchedulerJobReasonUniqueViolation}))
	assert.Zero(t, counterValue(t, registry, "sheetseries_scheduler_job_timeouts_total",
		map[string]string{"job": JobRetention}))
}

func TestRunJobLogsOneRunID(t *testing.T) {
	ingestion := &stubIngestion{respond: func(ingestdomain.InboxRequest) (*ingestdomain.Result, error) {
		return nil, fetcher.ErrNoAttachment
	}}
	s, registry, logs := newMeteredScheduler(t, ingestion)

	require.NoError(t, s.runJob(context.Background(), JobAutoIngest, time.Second, s.AutoIngestJob))
	assert.Len(t, ingestion.requests, 3)

	start := logs.FilterMessage("scheduler.job.start").All()
	finish := logs.FilterMessage("scheduler.job.finish").All()
	require.Len(t, start, 1)
	require.Len(t, finish, 1)
	assert.Equal(t, start[0].ContextMap()["run_id"], finish[0].ContextMap()["run_id"])
	assert.Equal(t, zapcore.InfoLevel, finish[0].Level)
	assert.EqualValues(t, 0, finish[0].ContextMap()["processed_count"])
	assert.Equal(t, 3, logs.FilterMessage("scheduler.selector.no_attachment").Len())

	assert.Equal(t, 1.0, counterValue(t, registry, "sheetseries_scheduler_job_runs_total",
		map[string]string{"job": JobAutoIngest}))
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

// counterValue sums the series of name whose labels include want; 0 when none match.
func counterValue(t *testing.T, registry *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue series
				}
			}
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
