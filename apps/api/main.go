package main

import (
	"github.com/smallbiznis/sheetseries/internal/clock"
	"github.com/smallbiznis/sheetseries/internal/config"
	"github.com/smallbiznis/sheetseries/internal/idgen"
	"github.com/smallbiznis/sheetseries/internal/migration"
	"github.com/smallbiznis/sheetseries/internal/observability"
	"github.com/smallbiznis/sheetseries/internal/server"
	"github.com/smallbiznis/sheetseries/pkg/db"
	"go.uber.org/fx"
)

// API-only deployment; pair with apps/scheduler for background ingestion.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		idgen.Module,
		db.Module,
		clock.Module,
		migration.Module,

		server.Services,
		server.Module,
	)
	app.Run()
}
