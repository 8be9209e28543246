package main

import (
	"github.com/smallbiznis/sheetseries/internal/clock"
	"github.com/smallbiznis/sheetseries/internal/config"
	"github.com/smallbiznis/sheetseries/internal/idgen"
	"github.com/smallbiznis/sheetseries/internal/observability"
	"github.com/smallbiznis/sheetseries/internal/scheduler"
	"github.com/smallbiznis/sheetseries/internal/server"
	"github.com/smallbiznis/sheetseries/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		idgen.Module,
		db.Module,
		clock.Module,

		// domain services only, no HTTP
		server.Services,
		scheduler.Module,
	)
	app.Run()
}
