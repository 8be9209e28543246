package migration

import (
	"fmt"

	"gorm.io/gorm"
)

// sqlite supports partial unique indexes, so it mirrors the postgres schema.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS timeseries_data (
		id            INTEGER PRIMARY KEY,
		client        TEXT NOT NULL,
		region        TEXT,
		workspace     TEXT NOT NULL DEFAULT '',
		sheet_name    TEXT NOT NULL,
		parameter     TEXT NOT NULL,
		ts_utc        TEXT NOT NULL,
		value         REAL NOT NULL,
		message_id    TEXT,
		received_utc  DATETIME,
		created_at    DATETIME NOT NULL,
		updated_at    DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_tsd_with_region
		ON timeseries_data (client, region, sheet_name, parameter, ts_utc)
		WHERE region IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_tsd_without_region
		ON timeseries_data (client, sheet_name, parameter, ts_utc)
		WHERE region IS NULL`,
	`CREATE INDEX IF NOT EXISTS ix_tsd_lookup_pair_ts
		ON timeseries_data (client, region, workspace, ts_utc)`,
	`CREATE INDEX IF NOT EXISTS ix_tsd_param_ts
		ON timeseries_data (client, region, parameter, ts_utc)`,
	`CREATE TABLE IF NOT EXISTS ingest_runs (
		id                 INTEGER PRIMARY KEY,
		source             TEXT NOT NULL,
		client             TEXT NOT NULL,
		region             TEXT,
		sender             TEXT,
		message_id         TEXT,
		subject            TEXT,
		received_at        DATETIME,
		status             TEXT NOT NULL,
		rows_written       INTEGER NOT NULL DEFAULT 0,
		unique_parameters  INTEGER NOT NULL DEFAULT 0,
		sheets_total       INTEGER NOT NULL DEFAULT 0,
		sheets_skipped     INTEGER NOT NULL DEFAULT 0,
		workbook_handle    TEXT,
		error_text         TEXT,
		metadata           JSON,
		created_at         DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_ingest_runs_client_created
		ON ingest_runs (client, region, created_at)`,
	`CREATE INDEX IF NOT EXISTS ix_ingest_runs_message
		ON ingest_runs (client, message_id, status)`,
}

// MySQL has no partial indexes. Identity uniqueness is enforced by the
// store's in-transaction pre-check; these indexes only serve the lookups.
var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS timeseries_data (
		id            BIGINT NOT NULL PRIMARY KEY,
		client        VARCHAR(128) NOT NULL,
		region        VARCHAR(128) NULL,
		workspace     VARCHAR(64) NOT NULL DEFAULT '',
		sheet_name    VARCHAR(191) NOT NULL,
		parameter     VARCHAR(191) NOT NULL,
		ts_utc        VARCHAR(32) NOT NULL,
		value         DOUBLE NOT NULL,
		message_id    VARCHAR(256) NULL,
		received_utc  DATETIME(6) NULL,
		created_at    DATETIME(6) NOT NULL,
		updated_at    DATETIME(6) NOT NULL,
		KEY ix_tsd_identity (client, sheet_name, parameter, ts_utc, region),
		KEY ix_tsd_lookup_pair_ts (client, region, workspace, ts_utc),
		KEY ix_tsd_param_ts (client, region, parameter, ts_utc)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS ingest_runs (
		id                 BIGINT NOT NULL PRIMARY KEY,
		source             VARCHAR(32) NOT NULL,
		client             VARCHAR(128) NOT NULL,
		region             VARCHAR(128) NULL,
		sender             VARCHAR(256) NULL,
		message_id         VARCHAR(256) NULL,
		subject            TEXT NULL,
		received_at        DATETIME(6) NULL,
		status             VARCHAR(16) NOT NULL,
		rows_written       INT NOT NULL DEFAULT 0,
		unique_parameters  INT NOT NULL DEFAULT 0,
		sheets_total       INT NOT NULL DEFAULT 0,
		sheets_skipped     INT NOT NULL DEFAULT 0,
		workbook_handle    VARCHAR(32) NULL,
		error_text         TEXT NULL,
		metadata           JSON NULL,
		created_at         DATETIME(6) NOT NULL,
		KEY ix_ingest_runs_client_created (client, region, created_at),
		KEY ix_ingest_runs_message (client, message_id(191), status)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Bootstrap creates the schema on engines that golang-migrate is not wired for.
func Bootstrap(conn *gorm.DB) error {
	var stmts []string
	switch name := conn.Dialector.Name(); name {
	case "sqlite":
		stmts = sqliteSchema
	case "mysql":
		stmts = mysqlSchema
	default:
		return fmt.Errorf("bootstrap: unsupported dialect %q", name)
	}
	for _, stmt := range stmts {
		if err := conn.Exec(stmt).Error; err != nil {
			return fmt.Errorf("bootstrap %s: %w", conn.Dialector.Name(), err)
		}
	}
	return nil
}
