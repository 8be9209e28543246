package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: SchedulerJobReasonDeadlineExceeded,
		},
		{
			name: "db_lock_timeout",
			err:  &pgconn.PgError{Code: "55P03"},
			want: SchedulerJobReasonDBLockTimeout,
		},
		{
			name: "unique_violation_pg",
			err:  fmt.Errorf("upsert: %w", &pgconn.PgError{Code: "23505"}),
			want: SchedulerJobReasonUniqueViolation,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: SchedulerJobReasonUniqueViolation,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: SchedulerJobReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestClassifySchedulerErrorType(t *testing.T) {
	if got := ClassifySchedulerErrorType(fmt.Errorf("inbox: %w", ErrFetchFailed)); got != SchedulerErrorTypeFetch {
		t.Fatalf("expected fetch, got %q", got)
	}
	if got := ClassifySchedulerErrorType(&pgconn.PgError{Code: "08006"}); got != SchedulerErrorTypeDB {
		t.Fatalf("expected db, got %q", got)
	}
	if !IsSchedulerErrorRetryable(ErrFetchFailed) {
		t.Fatalf("expected fetch failures to be retryable")
	}
	if IsSchedulerErrorRetryable(errors.New("boom")) {
		t.Fatalf("expected generic errors to be terminal")
	}
}

func TestSchedulerCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{
		ServiceName: "sheetseries",
		Environment: "test",
	})

	metrics.AddBatchProcessed("auto_ingest", "selectors", 3)
	metrics.IncJobRun("auto_ingest")
	metrics.IncJobTimeout("auto_ingest")
	metrics.IncJobError("auto_ingest", context.DeadlineExceeded)
	metrics.ObserveJobDuration("auto_ingest", 20*time.Millisecond)

	if got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues("auto_ingest", "selectors")); got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.jobRuns.WithLabelValues("auto_ingest")); got != 1 {
		t.Fatalf("expected run count 1, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.jobErrors.WithLabelValues("auto_ingest", SchedulerJobReasonDeadlineExceeded)); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func TestNilSchedulerMetricsIsSafe(t *testing.T) {
	var m *SchedulerMetrics
	m.IncJobRun("x")
	m.IncJobError("x", errors.New("boom"))
	m.ObserveRunLoopLag(time.Second)
}
