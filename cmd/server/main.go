package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/haukkala/procpilot/internal"
	"github.com/haukkala/procpilot/internal/command"
	"github.com/haukkala/procpilot/internal/deploy"
	"github.com/haukkala/procpilot/internal/handler"
	"github.com/haukkala/procpilot/internal/locker"
	"github.com/haukkala/procpilot/internal/pm2"
	"github.com/haukkala/procpilot/internal/settings"
	"github.com/haukkala/procpilot/internal/store"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	_ "modernc.org/sqlite"
)

func main() {
	settings.ReadDotenv(internal.DotEnvPath)
	settings.Settings = settings.NewSettings()

	rdb := store.InitDatabase(true)
	defer rdb.Close()
	rwdb := store.InitDatabase(false)
	defer rwdb.Close()
	store.RunMigrations(rwdb, internal.MigrationsDir)

	executor := command.NewExecutor(newRunner(), nil)
	supervisor := pm2.NewService(executor, pm2.Options{
		Bin:            settings.Settings.PM2Bin,
		CommandTimeout: settings.Settings.CommandTimeout,
		MaxRetries:     settings.Settings.MaxRetries,
		RetryDelay:     settings.Settings.RetryDelay,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	version, err := supervisor.Verify(ctx)
	cancel()
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("pm2 version: %s", version)

	materializer := pm2.NewMaterializer(settings.Settings.ConfigDir(), pm2.JSRenderer{})
	locks := locker.NewRegistry(settings.Settings.LockStaleAfter)
	history := store.NewDeploymentSQLiteStore(rdb, rwdb)

	orchestrator := deploy.NewOrchestrator(
		executor,
		supervisor,
		materializer,
		locks,
		history,
		deploy.Options{
			BaseDir:        settings.Settings.BaseDir,
			CommandTimeout: settings.Settings.CommandTimeout,
			DeployTimeout:  settings.Settings.DeployTimeout,
			MaxRetries:     settings.Settings.MaxRetries,
			RetryDelay:     settings.Settings.RetryDelay,
		},
	)

	scheduler := deploy.NewScheduler()
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			log.Printf("err shutting down scheduler: %v", err)
		}
	}()
	if err := deploy.RegisterJobs(
		scheduler, supervisor, locks, history, 30*24*time.Hour,
	); err != nil {
		log.Fatal(err)
	}
	scheduler.Start()

	processH := handler.NewProcessHandler(orchestrator, supervisor)

	e := echo.New()
	e.HTTPErrorHandler = handler.ErrorHandler
	e.Use(
		middleware.Recover(),
		middleware.Logger(),
		middleware.RateLimiterWithConfig(internal.GetRateLimiterConfig()),
	)

	e.GET("/health", handler.GetHealth)
	api := e.Group("/api", handler.APIKeyMiddleware(settings.Settings.APIKey))
	processH.Register(api)

	internal.GracefulShutdown(e, settings.Settings.Port)
}

// newRunner picks where pipeline commands run: locally by default, or
// on a remote agent host over SSH when one is configured.
func newRunner() command.Runner {
	if settings.Settings.AgentHost == "" {
		return command.NewLocalRunner("PM2_SILENT=true", "GIT_TERMINAL_PROMPT=0")
	}
	privateKey, err := os.ReadFile(settings.Settings.AgentKeyPath)
	if err != nil {
		log.Fatal("err reading agent ssh key: ", err)
	}
	return command.NewSSHRunner(
		settings.Settings.AgentHost,
		settings.Settings.AgentUser,
		privateKey,
	)
}
