package main

import (
	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/slipway-ci/slipway/internal"
	"github.com/slipway-ci/slipway/internal/handler"
	"github.com/slipway-ci/slipway/internal/image"
	"github.com/slipway-ci/slipway/internal/service"
	"github.com/slipway-ci/slipway/internal/settings"
	"github.com/slipway-ci/slipway/internal/store"

	_ "modernc.org/sqlite"
)

func main() {
	settings.ReadDotenv(internal.DotEnvPath)
	settings.Settings = settings.NewSettings()

	policy := service.LockPolicy(settings.Settings.ConcurrencyPolicy)
	switch policy {
	case service.PolicyQueue, service.PolicyReplace:
	default:
		log.Fatal("unknown concurrency policy", "policy", settings.Settings.ConcurrencyPolicy)
	}

	rdb := store.InitDatabase(true)
	defer rdb.Close()
	rwdb := store.InitDatabase(false)
	defer rwdb.Close()
	store.RunMigrations(rwdb, internal.MigrationsDir)

	definitions, err := service.LoadDefinitions(settings.Settings.PipelineDir)
	if err != nil {
		log.Fatal("loading pipeline definitions", "err", err)
	}

	scheduler := service.NewScheduler()
	defer scheduler.Shutdown()

	runStore := store.NewRunSQLiteStore(rdb, rwdb)
	imageBuildStore := store.NewImageBuildSQLiteStore(rdb, rwdb)
	keyStore := store.NewWebhookKeySQLiteStore(rdb, rwdb)

	engine := image.NewCLIEngine(settings.Settings.ContainerEngine)
	builder := image.NewBuilder(engine, settings.Settings.WorkspaceDir)

	pipelineSvc := service.NewPipelineService(
		definitions,
		service.RunQueueConfig{
			Runs:            runStore,
			ImageBuilds:     imageBuildStore,
			Runner:          service.NewLocalRunner(),
			Locks:           service.NewDeployLock(settings.Settings.LockDir),
			Builder:         builder,
			Policy:          policy,
			MaxRuns:         settings.Settings.MaxQueuedRuns,
			StageTimeout:    settings.Settings.StageTimeout,
			LockTimeout:     settings.Settings.LockTimeout,
			WorkspaceDir:    settings.Settings.WorkspaceDir,
			TestDatabaseURL: settings.Settings.TestDatabaseURL,
			DeployToken:     settings.Settings.DeployToken,
		},
		scheduler,
	)
	keySvc := service.NewWebhookKeyService(keyStore, service.NewUUIDGen())

	pipelineSvc.InitializeRunQueues()
	pipelineSvc.StartRunQueues()
	defer pipelineSvc.Shutdown()

	if err := pipelineSvc.SchedulePipelines(); err != nil {
		log.Fatal("scheduling pipelines", "err", err)
	}
	if err := pipelineSvc.ScheduleRetentionPruning(settings.Settings.RetentionDays); err != nil {
		log.Fatal("scheduling retention pruning", "err", err)
	}
	scheduler.Start()

	e := setupEcho()
	e.GET("/health", handler.GetHealth)
	handler.SetupHookRoutes(e.Group(""), pipelineSvc, keySvc)

	api := e.Group("/api", handler.WebhookKeyAuth(keySvc))
	handler.SetupRunRoutes(api, pipelineSvc)
	handler.SetupWebhookKeyRoutes(api, keySvc)

	internal.GracefulShutdown(e, settings.Settings.Port)
}

func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.ErrorHandler
	e.Use(
		middleware.CORSWithConfig(internal.GetCORSConfig()),
		middleware.RateLimiterWithConfig(internal.GetRateLimiterConfig()),
	)
	return e
}
