package migration

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, log *zap.Logger) error {
		return Apply(conn, log)
	}),
)

// Apply brings the schema up to date for whichever engine conn points at.
func Apply(conn *gorm.DB, log *zap.Logger) error {
	if conn.Dialector.Name() != "postgres" {
		log.Info("bootstrapping schema", zap.String("dialect", conn.Dialector.Name()))
		return Bootstrap(conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	log.Info("applying migrations", zap.String("dialect", "postgres"))
	return RunMigrations(sqlDB)
}
