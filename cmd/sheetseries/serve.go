package main

import (
	"github.com/smallbiznis/sheetseries/internal/scheduler"
	"github.com/smallbiznis/sheetseries/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API together with the scheduler",
	Run: func(cmd *cobra.Command, args []string) {
		fx.New(
			coreModules(),
			server.Services,
			server.Module,
			scheduler.Module,
		).Run()
	},
}
