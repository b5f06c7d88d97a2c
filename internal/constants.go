package internal

const (
	DotEnvPath        = "./.env"
	MigrationsDir     = "migrations"
	APIKeyHeader      = "X-ProcPilot-API-Key"
	DBTimestampLayout = "2006-01-02 15:04:05"

	ConfigFileSuffix = ".config.js"
)
