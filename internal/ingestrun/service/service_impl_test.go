package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sheetseries/internal/clock"
	rundomain "github.com/smallbiznis/sheetseries/internal/ingestrun/domain"
	"github.com/smallbiznis/sheetseries/internal/ingestrun/repository"
	"github.com/smallbiznis/sheetseries/internal/migration"
	"github.com/smallbiznis/sheetseries/pkg/db/dbtest"
	"github.com/smallbiznis/sheetseries/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (rundomain.Service, *clock.FakeClock) {
	t.Helper()
	conn := dbtest.New(t)
	require.NoError(t, migration.Apply(conn, zap.NewNop()))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 8, 21, 10, 0, 0, 0, time.UTC))
	return New(Params{DB: conn, Log: zap.NewNop(), GenID: node, Repo: repository.Provide(), Clock: clk}), clk
}

func TestRecordDerivesStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	run, err := svc.Record(ctx, rundomain.RecordRequest{
		Source:        rundomain.SourceUpload,
		Client:        "acme",
		Region:        strPtr(" "),
		MessageID:     "msg-1",
		RowsWritten:   4,
		SheetsTotal:   2,
		SheetsSkipped: []string{"Notes"},
	})
	require.NoError(t, err)
	assert.Equal(t, rundomain.StatusPartial, run.Status)
	assert.Nil(t, run.Region)
	assert.Equal(t, 1, run.SheetsSkipped)
	assert.Equal(t, []any{"Notes"}, run.Metadata["skipped_sheets"])

	run, err = svc.Record(ctx, rundomain.RecordRequest{
		Source: rundomain.SourceInbox,
		Client: "acme",
		Err:    errors.New("boom"),
	})
	require.NoError(t, err)
	assert.Equal(t, rundomain.StatusFailed, run.Status)
	require.NotNil(t, run.ErrorText)
	assert.Equal(t, "boom", *run.ErrorText)

	_, err = svc.Record(ctx, rundomain.RecordRequest{Source: "fax", Client: "acme"})
	assert.ErrorIs(t, err, rundomain.ErrInvalidSource)
	_, err = svc.Record(ctx, rundomain.RecordRequest{Source: rundomain.SourceCLI})
	assert.ErrorIs(t, err, rundomain.ErrInvalidClient)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, rundomain.StatusFailed, rundomain.StatusFor(errors.New("x"), 10, 0))
	assert.Equal(t, rundomain.StatusEmpty, rundomain.StatusFor(nil, 0, 2))
	assert.Equal(t, rundomain.StatusPartial, rundomain.StatusFor(nil, 3, 1))
	assert.Equal(t, rundomain.StatusSuccess, rundomain.StatusFor(nil, 3, 0))
}

func TestListPaginatesNewestFirst(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Record(ctx, rundomain.RecordRequest{
			Source: rundomain.SourceScheduler, Client: "acme", Region: strPtr("EMEA"), RowsWritten: i + 1,
		})
		require.NoError(t, err)
		clk.Advance(time.Minute)
	}
	_, err := svc.Record(ctx, rundomain.RecordRequest{Source: rundomain.SourceUpload, Client: "acme", RowsWritten: 1})
	require.NoError(t, err)

	page, err := svc.List(ctx, rundomain.ListRequest{
		Client: "acme", Region: "EMEA", Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, page.Runs, 2)
	assert.Equal(t, 5, page.Runs[0].RowsWritten)
	assert.Equal(t, 4, page.Runs[1].RowsWritten)
	require.True(t, page.PageInfo.HasMore)

	var seen []int
	token := page.PageInfo.NextPageToken
	for token != "" {
		next, err := svc.List(ctx, rundomain.ListRequest{
			Client: "acme", Region: "EMEA", Pagination: pagination.Pagination{PageSize: 2, PageToken: token},
		})
		require.NoError(t, err)
		for _, r := range next.Runs {
			seen = append(seen, r.RowsWritten)
		}
		token = next.PageInfo.NextPageToken
	}
	assert.Equal(t, []int{3, 2, 1}, seen)

	regionless, err := svc.List(ctx, rundomain.ListRequest{Client: "acme"})
	require.NoError(t, err)
	assert.Len(t, regionless.Runs, 1)

	_, err = svc.List(ctx, rundomain.ListRequest{Client: "acme", Pagination: pagination.Pagination{PageToken: "!!"}})
	assert.ErrorIs(t, err, pagination.ErrInvalidPageToken)
}

func TestSucceeded(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, rundomain.RecordRequest{Source: rundomain.SourceScheduler, Client: "acme", MessageID: "m1", RowsWritten: 3})
	require.NoError(t, err)
	_, err = svc.Record(ctx, rundomain.RecordRequest{Source: rundomain.SourceScheduler, Client: "acme", MessageID: "m2", Err: errors.New("x")})
	require.NoError(t, err)

	ok, err := svc.Succeeded(ctx, "acme", nil, "m1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Succeeded(ctx, "acme", nil, "m2")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.Succeeded(ctx, "acme", strPtr("EMEA"), "m1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func strPtr(s string) *string { return &s }
