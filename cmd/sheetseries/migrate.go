package main

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/smallbiznis/sheetseries/internal/config"
	"github.com/smallbiznis/sheetseries/internal/migration"
	obslogger "github.com/smallbiznis/sheetseries/internal/observability/logger"
	"github.com/smallbiznis/sheetseries/pkg/db"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbCfg := db.FromAppConfig(config.Load())

		if dbCfg.Type != db.TypePostgres {
			conn, err := db.Open(dbCfg, obslogger.NewGormLogger(obslogger.DefaultGormLoggerConfig()))
			if err != nil {
				return err
			}
			if err := migration.Bootstrap(conn); err != nil {
				return err
			}
			printOK(cmd, "%s schema bootstrapped", dbCfg.Type)
			return nil
		}

		sqlDB, err := sql.Open("postgres", db.PostgresDSN(dbCfg))
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer sqlDB.Close()
		if err := sqlDB.PingContext(cmd.Context()); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		if err := migration.RunMigrations(sqlDB); err != nil {
			return err
		}
		printOK(cmd, "postgres migrations applied")
		return nil
	},
}
