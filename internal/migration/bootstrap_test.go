package migration

import (
	"testing"

	"github.com/smallbiznis/sheetseries/pkg/db/dbtest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestApplyBootstrapsSQLite(t *testing.T) {
	conn := dbtest.New(t)

	require.NoError(t, Apply(conn, zap.NewNop()))
	// idempotent
	require.NoError(t, Apply(conn, zap.NewNop()))

	var indexes []string
	require.NoError(t, conn.Raw(
		`SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = 'timeseries_data' ORDER BY name`,
	).Scan(&indexes).Error)
	require.Subset(t, indexes, []string{
		"ix_tsd_lookup_pair_ts",
		"ix_tsd_param_ts",
		"uq_tsd_with_region",
		"uq_tsd_without_region",
	})

	require.True(t, conn.Migrator().HasTable("ingest_runs"))
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := embeddedMigrations.ReadDir(migrationsDir)
	require.NoError(t, err)
	require.Len(t, entries, 4)
}
