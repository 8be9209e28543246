package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sheetseries/internal/clock"
	"github.com/smallbiznis/sheetseries/internal/migration"
	tsdomain "github.com/smallbiznis/sheetseries/internal/timeseries/domain"
	"github.com/smallbiznis/sheetseries/internal/timeseries/repository"
	"github.com/smallbiznis/sheetseries/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func strPtr(s string) *string { return &s }

func newTestService(t *testing.T, repo tsdomain.Repository) (tsdomain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	conn := dbtest.New(t)
	require.NoError(t, migration.Apply(conn, zap.NewNop()))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC))
	svc := New(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repo,
		Clock: clk,
	})
	return svc, conn, clk
}

func point(client string, region *string, parameter, ts string, value float64) tsdomain.Point {
	return tsdomain.Point{
		Client:    client,
		Region:    region,
		Workspace: "LIVE",
		SheetName: "Live",
		Parameter: parameter,
		TsUTC:     ts,
		Value:     value,
		MessageID: strPtr("msg-1"),
	}
}

func loadAll(t *testing.T, conn *gorm.DB) []tsdomain.Point {
	t.Helper()
	var rows []tsdomain.Point
	require.NoError(t, conn.Order("client, region, parameter, ts_utc").Find(&rows).Error)
	return rows
}

var strategies = map[string]repository.Strategy{
	"on_conflict": repository.StrategyOnConflict,
	"precheck":    repository.StrategyPrecheck,
}

func TestAppendIsIdempotent(t *testing.T) {
	for name, strategy := range strategies {
		t.Run(name, func(t *testing.T) {
			svc, conn, _ := newTestService(t, repository.NewWithStrategy(strategy))
			ctx := context.Background()

			batch := []tsdomain.Point{
				point("acme", nil, "CPU", "2024-08-21 09:30:00+00:00", 10),
				point("acme", nil, "MEM", "2024-08-21 09:30:00+00:00", 30),
				point("globex", strPtr("EMEA"), "CPU", "2024-08-21 09:30:00+00:00", 1),
			}

			rows, params, err := svc.Append(ctx, batch)
			require.NoError(t, err)
			assert.Equal(t, 3, rows)
			assert.Equal(t, 2, params)
			first := loadAll(t, conn)

			rows, params, err = svc.Append(ctx, batch)
			require.NoError(t, err)
			assert.Equal(t, 3, rows)
			assert.Equal(t, 2, params)

			second := loadAll(t, conn)
			require.Len(t, second, 3)
			for i := range first {
				assert.Equal(t, first[i].ID, second[i].ID)
				assert.Equal(t, first[i].Value, second[i].Value)
			}
		})
	}
}

func TestAppendReplacesOnConflict(t *testing.T) {
	for name, strategy := range strategies {
		t.Run(name, func(t *testing.T) {
			svc, conn, clk := newTestService(t, repository.NewWithStrategy(strategy))
			ctx := context.Background()

			_, _, err := svc.Append(ctx, []tsdomain.Point{point("acme", strPtr("APAC"), "CPU", "2024-08-21 09:30:00+00:00", 10)})
			require.NoError(t, err)

			clk.Advance(time.Hour)
			updated := point("acme", strPtr("APAC"), "CPU", "2024-08-21 09:30:00+00:00", 99)
			updated.Workspace = "FED"
			updated.MessageID = strPtr("msg-2")
			received := clk.Now()
			updated.ReceivedUTC = &received
			_, _, err = svc.Append(ctx, []tsdomain.Point{updated})
			require.NoError(t, err)

			rows := loadAll(t, conn)
			require.Len(t, rows, 1)
			assert.Equal(t, 99.0, rows[0].Value)
			assert.Equal(t, "FED", rows[0].Workspace)
			require.NotNil(t, rows[0].MessageID)
			assert.Equal(t, "msg-2", *rows[0].MessageID)
			require.NotNil(t, rows[0].ReceivedUTC)
			assert.True(t, rows[0].UpdatedAt.After(rows[0].CreatedAt))
		})
	}
}

func TestAppendPartitionsByRegionPresence(t *testing.T) {
	for name, strategy := range strategies {
		t.Run(name, func(t *testing.T) {
			svc, conn, _ := newTestService(t, repository.NewWithStrategy(strategy))
			ctx := context.Background()

			ts := "2024-08-21 09:30:00+00:00"
			rows, _, err := svc.Append(ctx, []tsdomain.Point{
				point("acme", nil, "CPU", ts, 1),
				point("acme", strPtr(""), "CPU", ts, 2),
				point("acme", strPtr("EMEA"), "CPU", ts, 3),
				point("acme", strPtr("APAC"), "CPU", ts, 4),
			})
			require.NoError(t, err)
			// nil and "" share one identity
			assert.Equal(t, 3, rows)

			stored := loadAll(t, conn)
			require.Len(t, stored, 3)
			byRegion := map[string]float64{}
			for _, p := range stored {
				key := "<none>"
				if p.Region != nil {
					key = *p.Region
				}
				byRegion[key] = p.Value
			}
			assert.Equal(t, map[string]float64{"<none>": 2, "EMEA": 3, "APAC": 4}, byRegion)
		})
	}
}

func TestAppendCollapsesInBatchDuplicates(t *testing.T) {
	svc, conn, _ := newTestService(t, repository.Provide())

	rows, params, err := svc.Append(context.Background(), []tsdomain.Point{
		point("acme", nil, "CPU", "2024-08-21 09:30:00+00:00", 1),
		point("acme", nil, "CPU", "2024-08-21 09:30:00+00:00", 2),
		point("acme", nil, "CPU", "2024-08-21 17:30:00+00:00", 3),
		point("acme", nil, "CPU", "2024-08-21 09:30:00+00:00", 4),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rows)
	assert.Equal(t, 1, params)

	stored := loadAll(t, conn)
	require.Len(t, stored, 2)
	assert.Equal(t, 4.0, stored[0].Value)
	assert.Equal(t, 3.0, stored[1].Value)
}

func TestAppendEmptyBatch(t *testing.T) {
	svc, _, _ := newTestService(t, repository.Provide())
	rows, params, err := svc.Append(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, rows)
	assert.Zero(t, params)
}

func TestAppendRejectsMissingClient(t *testing.T) {
	svc, _, _ := newTestService(t, repository.Provide())
	_, _, err := svc.Append(context.Background(), []tsdomain.Point{point(" ", nil, "CPU", "2024-08-21 09:30:00+00:00", 1)})
	assert.ErrorIs(t, err, tsdomain.ErrInvalidClient)
}

func TestAppendSurfacesPersistenceError(t *testing.T) {
	svc, conn, _ := newTestService(t, repository.Provide())
	require.NoError(t, conn.Exec(`DROP TABLE timeseries_data`).Error)

	_, _, err := svc.Append(context.Background(), []tsdomain.Point{point("acme", nil, "CPU", "2024-08-21 09:30:00+00:00", 1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, tsdomain.ErrPersistence)
}

func TestAppendRollsBackWholeBatch(t *testing.T) {
	svc, conn, _ := newTestService(t, repository.NewWithStrategy(repository.StrategyPrecheck))
	// reject the second insert only
	require.NoError(t, conn.Exec(`CREATE TRIGGER reject_mem BEFORE INSERT ON timeseries_data
		WHEN NEW.parameter = 'MEM' BEGIN SELECT RAISE(ABORT, 'rejected'); END`).Error)

	_, _, err := svc.Append(context.Background(), []tsdomain.Point{
		point("acme", nil, "CPU", "2024-08-21 09:30:00+00:00", 1),
		point("acme", nil, "MEM", "2024-08-21 09:30:00+00:00", 2),
	})
	require.ErrorIs(t, err, tsdomain.ErrPersistence)
	assert.Empty(t, loadAll(t, conn))
}

func TestPurge(t *testing.T) {
	svc, conn, _ := newTestService(t, repository.Provide())
	ctx := context.Background()

	_, _, err := svc.Append(ctx, []tsdomain.Point{
		point("acme", nil, "CPU", "2024-01-15 09:30:00+00:00", 1),
		point("acme", nil, "CPU", "2024-07-15 09:30:00+00:00", 2),
		point("acme", nil, "CPU", "2024-08-31 09:30:00+00:00", 3),
	})
	require.NoError(t, err)

	res, err := svc.Purge(ctx, tsdomain.PurgeRequest{Months: 2})
	require.NoError(t, err)
	assert.Equal(t, "2024-07-01 00:00:00+00:00", res.Cutoff)
	assert.Equal(t, int64(1), res.Deleted)
	assert.Len(t, loadAll(t, conn), 2)

	_, err = svc.Purge(ctx, tsdomain.PurgeRequest{Months: 0})
	assert.ErrorIs(t, err, tsdomain.ErrInvalidMonths)
	_, err = svc.Purge(ctx, tsdomain.PurgeRequest{Months: 121})
	assert.ErrorIs(t, err, tsdomain.ErrInvalidMonths)
}

func TestAppendConcurrentBatchesKeepOneRowPerIdentity(t *testing.T) {
	for name, strategy := range strategies {
		t.Run(name, func(t *testing.T) {
			svc, conn, _ := newTestService(t, repository.NewWithStrategy(strategy))
			ctx := context.Background()

			const writers = 8
			var wg sync.WaitGroup
			errs := make(chan error, writers)
			for w := 0; w < writers; w++ {
				wg.Add(1)
				go func(value float64) {
					defer wg.Done()
					_, _, err := svc.Append(ctx, []tsdomain.Point{
						point("acme", nil, "CPU", "2024-08-21 09:30:00+00:00", value),
						point("acme", nil, "MEM", "2024-08-21 09:30:00+00:00", value),
						point("acme", strPtr("NORTH"), "CPU", "2024-08-21 09:30:00+00:00", value),
					})
					errs <- err
				}(float64(w + 1))
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			rows := loadAll(t, conn)
			require.Len(t, rows, 3)
			// every batch is atomic, so the surviving values all come from the last committed one
			for _, row := range rows {
				assert.Equal(t, rows[0].Value, row.Value)
			}
			assert.GreaterOrEqual(t, rows[0].Value, 1.0)
			assert.LessOrEqual(t, rows[0].Value, float64(writers))
		})
	}
}

// racingRepo reports a unique violation on the first upsert, as a concurrent
// insert of the same identity would.
type racingRepo struct {
	tsdomain.Repository
	calls int
}

func (r *racingRepo) Upsert(ctx context.Context, tx *gorm.DB, points []tsdomain.Point) error {
	r.calls++
	if r.calls == 1 {
		return fmt.Errorf("insert timeseries_data: %w", gorm.ErrDuplicatedKey)
	}
	return r.Repository.Upsert(ctx, tx, points)
}

func TestAppendRetriesDuplicateKeyRace(t *testing.T) {
	repo := &racingRepo{Repository: repository.NewWithStrategy(repository.StrategyPrecheck)}
	svc, conn, _ := newTestService(t, repo)

	rows, _, err := svc.Append(context.Background(), []tsdomain.Point{
		point("acme", nil, "CPU", "2024-08-21 09:30:00+00:00", 10),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rows)
	assert.Equal(t, 2, repo.calls)
	assert.Len(t, loadAll(t, conn), 1)
}
