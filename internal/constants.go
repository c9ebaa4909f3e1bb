package internal

const (
	DotEnvPath        = "./.env"
	MigrationsDir     = "migrations"
	DBTimestampLayout = "2006-01-02 15:04:05"

	// WebhookKeyHeader carries the shared key that authorizes a trigger
	// event to start a pipeline run.
	WebhookKeyHeader = "X-Slipway-Webhook-Key"

	TestStage   = "test"
	BuildStage  = "build"
	DeployStage = "deploy"
)
