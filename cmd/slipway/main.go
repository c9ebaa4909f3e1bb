package main

import (
	"context"
	"database/sql"
	"errors"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/slipway-ci/slipway/internal"
	"github.com/slipway-ci/slipway/internal/image"
	"github.com/slipway-ci/slipway/internal/service"
	"github.com/slipway-ci/slipway/internal/settings"
	"github.com/slipway-ci/slipway/internal/store"
	"github.com/spf13/cobra"

	_ "modernc.org/sqlite"
)

// version is set via -ldflags at release time.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "slipway",
	Short: "Gated pipeline runner and layered image builder",
	Long: `slipway runs a gated continuous-delivery pipeline: the test stage is
the gate, and only a clean pass lets the build and deploy stages run.

  slipway run --pipeline web --branch main    trigger a run and wait
  slipway build --spec image.yml              build a release image
  slipway keys create ci                      mint a webhook key

The long-running trigger daemon is the separate slipwayd binary.`,
}

func init() {
	cobra.OnInitialize(initSettings)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(keysCmd)
}

func initSettings() {
	settings.ReadDotenv(internal.DotEnvPath)
	settings.Settings = settings.NewSettings()
}

func openDatabases() (rdb, rwdb *sql.DB) {
	rdb = store.InitDatabase(true)
	rwdb = store.InitDatabase(false)
	store.RunMigrations(rwdb, internal.MigrationsDir)
	return rdb, rwdb
}

func queueConfig(rdb, rwdb *sql.DB) service.RunQueueConfig {
	engine := image.NewCLIEngine(settings.Settings.ContainerEngine)
	return service.RunQueueConfig{
		Runs:            store.NewRunSQLiteStore(rdb, rwdb),
		ImageBuilds:     store.NewImageBuildSQLiteStore(rdb, rwdb),
		Runner:          service.NewLocalRunner(),
		Locks:           service.NewDeployLock(settings.Settings.LockDir),
		Builder:         image.NewBuilder(engine, settings.Settings.WorkspaceDir),
		Policy:          service.LockPolicy(settings.Settings.ConcurrencyPolicy),
		MaxRuns:         settings.Settings.MaxQueuedRuns,
		StageTimeout:    settings.Settings.StageTimeout,
		LockTimeout:     settings.Settings.LockTimeout,
		WorkspaceDir:    settings.Settings.WorkspaceDir,
		TestDatabaseURL: settings.Settings.TestDatabaseURL,
		DeployToken:     settings.Settings.DeployToken,
	}
}

func main() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(internal.ExitConfig)
	}
}
