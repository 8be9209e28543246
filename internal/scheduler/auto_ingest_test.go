package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/sheetseries/internal/clock"
	"github.com/smallbiznis/sheetseries/internal/config"
	"github.com/smallbiznis/sheetseries/internal/fetcher"
	ingestdomain "github.com/smallbiznis/sheetseries/internal/ingestion/domain"
	rundomain "github.com/smallbiznis/sheetseries/internal/ingestrun/domain"
	"github.com/smallbiznis/sheetseries/internal/sheet"
	tsdomain "github.com/smallbiznis/sheetseries/internal/timeseries/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const schedulerRegistry = `
clients:
  - name: Acme
    sender: reports@acme.example
  - name: Globex
    regions:
      - name: NORTH
        sender: north@globex.example
      - name: SOUTH
        sender: south@globex.example
`

type stubIngestion struct {
	mu       sync.Mutex
	requests []ingestdomain.InboxRequest
	respond  func(req ingestdomain.InboxRequest) (*ingestdomain.Result, error)
}

func (s *stubIngestion) IngestWorkbook(context.Context, *sheet.Workbook, ingestdomain.WorkbookRequest) (*ingestdomain.Result, error) {
	return nil, errors.New("not implemented")
}

func (s *stubIngestion) IngestFile(context.Context, ingestdomain.FileRequest) (*ingestdomain.Result, error) {
	return nil, errors.New("not implemented")
}

func (s *stubIngestion) IngestFromInbox(_ context.Context, req ingestdomain.InboxRequest) (*ingestdomain.Result, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	return s.respond(req)
}

type stubPoints struct {
	months int
}

func (s *stubPoints) Append(context.Context, []tsdomain.Point) (int, int, error) {
	return 0, 0, nil
}

func (s *stubPoints) Purge(_ context.Context, req tsdomain.PurgeRequest) (*tsdomain.PurgeResult, error) {
	s.months = req.Months
	return &tsdomain.PurgeResult{Cutoff: "2024-03-01 00:00:00+00:00", Deleted: 12}, nil
}

func newTestScheduler(t *testing.T, ingestion ingestdomain.Service, points tsdomain.Service, cfg Config) *Scheduler {
	t.Helper()

	restore := swapPrometheusRegistry(prometheus.NewRegistry())
	t.Cleanup(restore)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	registry, err := config.NewStaticClientRegistry([]byte(schedulerRegistry))
	require.NoError(t, err)

	s, err := New(Params{
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clock.NewFakeClock(time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)),
		Registry:  registry,
		Ingestion: ingestion,
		Points:    points,
		Config:    cfg,
	})
	require.NoError(t, err)
	return s
}

func TestAutoIngestJobVisitsEverySelector(t *testing.T) {
	ingestion := &stubIngestion{respond: func(req ingestdomain.InboxRequest) (*ingestdomain.Result, error) {
		switch req.Region {
		case "SOUTH":
			return nil, fetcher.ErrNoAttachment
		case "NORTH":
			return &ingestdomain.Result{AlreadyIngested: true}, nil
		}
		return &ingestdomain.Result{RowsWritten: 4, MessageID: "m-1"}, nil
	}}
	s := newTestScheduler(t, ingestion, &stubPoints{}, Config{SubjectHint: "healthcheck", LookbackHours: 24})

	require.NoError(t, s.RunOnce(context.Background()))
	require.Len(t, ingestion.requests, 3)

	first := ingestion.requests[0]
	assert.Equal(t, "Acme", first.Client)
	assert.Equal(t, "", first.Region)
	assert.Equal(t, rundomain.SourceScheduler, first.Source)
	assert.Equal(t, "healthcheck", first.SubjectHint)
	assert.Equal(t, 24, first.LookbackHours)
	assert.True(t, first.SkipIngested)

	assert.Equal(t, "NORTH", ingestion.requests[1].Region)
	assert.Equal(t, "SOUTH", ingestion.requests[2].Region)
}

func TestAutoIngestJobJoinsSelectorErrors(t *testing.T) {
	boom := errors.New("boom")
	ingestion := &stubIngestion{respond: func(req ingestdomain.InboxRequest) (*ingestdomain.Result, error) {
		if req.Client == "Acme" {
			return nil, boom
		}
		return &ingestdomain.Result{RowsWritten: 1}, nil
	}}
	s := newTestScheduler(t, ingestion, &stubPoints{}, Config{})

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), JobAutoIngest)
	assert.Len(t, ingestion.requests, 3)
}

func TestRunOnceSkipsDisabledJobs(t *testing.T) {
	ingestion := &stubIngestion{respond: func(ingestdomain.InboxRequest) (*ingestdomain.Result, error) {
		return &ingestdomain.Result{}, nil
	}}
	s := newTestScheduler(t, ingestion, &stubPoints{}, Config{EnabledJobs: []string{"something_else"}})

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Empty(t, ingestion.requests)
}

func TestRetentionJobPurgesConfiguredMonths(t *testing.T) {
	points := &stubPoints{}
	s := newTestScheduler(t, &stubIngestion{}, points, Config{RetentionMonths: 3})

	require.NoError(t, s.RetentionJob(context.Background()))
	assert.Equal(t, 3, points.months)
}

func TestStartRetentionValidatesSchedule(t *testing.T) {
	s := newTestScheduler(t, &stubIngestion{}, &stubPoints{}, Config{RetentionCron: "not a cron"})
	_, err := s.StartRetention(context.Background())
	assert.Error(t, err)

	s = newTestScheduler(t, &stubIngestion{}, &stubPoints{}, Config{Timezone: "Mars/Olympus"})
	_, err = s.StartRetention(context.Background())
	assert.Error(t, err)

	s = newTestScheduler(t, &stubIngestion{}, &stubPoints{}, Config{RetentionCron: "@daily"})
	c, err := s.StartRetention(context.Background())
	require.NoError(t, err)
	<-c.Stop().Done()
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
