// procpilot is a one-shot CLI for the deployment core: it runs a
// single create, update or delete against the local supervisor without
// going through the HTTP control plane.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/haukkala/procpilot/internal"
	"github.com/haukkala/procpilot/internal/command"
	"github.com/haukkala/procpilot/internal/deploy"
	"github.com/haukkala/procpilot/internal/locker"
	"github.com/haukkala/procpilot/internal/pm2"
	"github.com/haukkala/procpilot/internal/settings"
	"github.com/haukkala/procpilot/internal/store"

	_ "modernc.org/sqlite"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	settings.ReadDotenv(internal.DotEnvPath)
	settings.Settings = settings.NewSettings()

	rdb := store.InitDatabase(true)
	defer rdb.Close()
	rwdb := store.InitDatabase(false)
	defer rwdb.Close()
	store.RunMigrations(rwdb, internal.MigrationsDir)

	executor := command.NewExecutor(
		command.NewLocalRunner("PM2_SILENT=true", "GIT_TERMINAL_PROMPT=0"),
		nil,
	)
	supervisor := pm2.NewService(executor, pm2.Options{
		Bin:            settings.Settings.PM2Bin,
		CommandTimeout: settings.Settings.CommandTimeout,
		MaxRetries:     settings.Settings.MaxRetries,
		RetryDelay:     settings.Settings.RetryDelay,
	})
	orchestrator := deploy.NewOrchestrator(
		executor,
		supervisor,
		pm2.NewMaterializer(settings.Settings.ConfigDir(), pm2.JSRenderer{}),
		locker.NewRegistry(settings.Settings.LockStaleAfter),
		store.NewDeploymentSQLiteStore(rdb, rwdb),
		deploy.Options{
			BaseDir:        settings.Settings.BaseDir,
			CommandTimeout: settings.Settings.CommandTimeout,
			DeployTimeout:  settings.Settings.DeployTimeout,
			MaxRetries:     settings.Settings.MaxRetries,
			RetryDelay:     settings.Settings.RetryDelay,
		},
	)

	ctx := context.Background()

	switch os.Args[1] {
	case "deploy":
		fs := flag.NewFlagSet("deploy", flag.ExitOnError)
		manifestPath := fs.String("f", "procpilot.yaml", "deployment manifest")
		fs.Parse(os.Args[2:])

		manifest, err := os.ReadFile(*manifestPath)
		if err != nil {
			log.Fatal(err)
		}
		req := new(deploy.Request)
		if err := yaml.Unmarshal(manifest, req); err != nil {
			log.Fatal("err parsing manifest: ", err)
		}

		result, err := orchestrator.Create(ctx, *req)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%s\nconfig: %s\n", result.Message, result.ConfigFilePath)

	case "update":
		fs := flag.NewFlagSet("update", flag.ExitOnError)
		fs.Parse(os.Args[2:])
		if fs.NArg() != 1 {
			usage()
		}

		result, err := orchestrator.Update(ctx, fs.Arg(0))
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(result.Message)

	case "delete":
		fs := flag.NewFlagSet("delete", flag.ExitOnError)
		force := fs.Bool("force", false, "delete even if the process is running")
		fs.Parse(os.Args[2:])
		if fs.NArg() != 1 {
			usage()
		}

		result, err := orchestrator.Delete(ctx, fs.Arg(0), *force)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(result.Message)

	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  procpilot deploy [-f manifest.yaml]
  procpilot update <name>
  procpilot delete [-force] <name>`)
	os.Exit(2)
}
