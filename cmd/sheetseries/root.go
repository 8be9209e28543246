package main

import (
	"context"
	"time"

	"github.com/fatih/color"
	"github.com/smallbiznis/sheetseries/internal/batchmetrics"
	"github.com/smallbiznis/sheetseries/internal/clock"
	"github.com/smallbiznis/sheetseries/internal/config"
	"github.com/smallbiznis/sheetseries/internal/idgen"
	"github.com/smallbiznis/sheetseries/internal/migration"
	"github.com/smallbiznis/sheetseries/internal/observability"
	"github.com/smallbiznis/sheetseries/internal/server"
	"github.com/smallbiznis/sheetseries/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:           "sheetseries",
	Short:         "Spreadsheet time-series ingestion and query service",
	Long:          color.CyanString("sheetseries") + "\nIngests wide spreadsheet reports into a long-format time series store and serves rollups over HTTP.",
	SilenceUsage:  true,
	SilenceErrors: false,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("sheetseries %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(migrateCmd)
}

// coreModules is the infrastructure every command shares.
func coreModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		idgen.Module,
		db.Module,
		clock.Module,
		migration.Module,
	)
}

// runOneShot starts a headless app with targets populated, runs fn and stops
// the app. fn reports the rows it touched; the outcome is pushed as batch
// metrics when an exporter is configured.
func runOneShot(ctx context.Context, command string, fn func(context.Context) (int64, error), targets ...any) (err error) {
	var (
		cfg config.Config
		log *zap.Logger
	)
	app := fx.New(
		coreModules(),
		server.Services,
		fx.NopLogger,
		fx.Populate(append(targets, &cfg, &log)...),
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
		defer stop()
		if stopErr := app.Stop(stopCtx); err == nil {
			err = stopErr
		}
	}()

	recorder := batchmetrics.NewRecorder(command)
	started := time.Now()
	rows, err := fn(ctx)
	recorder.Observe(rows, time.Since(started), time.Now(), err)

	pushCtx, cancelPush := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancelPush()
	recorder.Flush(pushCtx, batchmetrics.NewPusher(cfg, log), log)
	return err
}

func printOK(cmd *cobra.Command, format string, args ...any) {
	cmd.Println(color.GreenString("✓ ") + color.New(color.Bold).Sprintf(format, args...))
}

func printWarn(cmd *cobra.Command, format string, args ...any) {
	cmd.Println(color.YellowString("! ") + color.YellowString(format, args...))
}
