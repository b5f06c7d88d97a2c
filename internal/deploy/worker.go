package deploy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/haukkala/procpilot/internal/command"
	"github.com/haukkala/procpilot/internal/pm2"
)

// Executor runs external commands with bounded timeouts.
type Executor interface {
	Execute(
		ctx context.Context, cmd, workdir string, timeout time.Duration,
	) (*command.Outcome, error)
	ExecuteWithRetry(
		ctx context.Context, cmd, workdir string, timeout time.Duration,
		maxAttempts int, backoffDelay time.Duration,
	) (*command.Outcome, error)
}

// Supervisor is the slice of the pm2 control surface the pipeline uses.
type Supervisor interface {
	Get(ctx context.Context, name string) (*pm2.Process, error)
	StartConfig(ctx context.Context, configPath string) error
	Delete(ctx context.Context, name string) error
	Save(ctx context.Context) error
}

// ConfigMaterializer renders, persists and deletes the supervisor
// configuration artifact for a process.
type ConfigMaterializer interface {
	Path(name string) string
	Exists(name string) bool
	Write(cfg *pm2.Ecosystem) (string, error)
	Read(name string) (string, error)
	Delete(name string) error
}

type pipelineStep struct {
	name    string
	execute func(ctx context.Context) (string, error)
}

// worker executes the ordered provisioning pipeline for one request in
// its own goroutine and reports exactly one terminal Result over the
// result channel, so a hung external command never blocks the
// orchestrator's request context.
type worker struct {
	req        Request
	paths      processPaths
	executor   Executor
	config     ConfigMaterializer
	supervisor Supervisor
	opts       Options
}

func (w *worker) run(ctx context.Context, resultCh chan<- Result) {
	var (
		trace      []StepResult
		configPath string
	)

	steps := []pipelineStep{
		{
			name: "Create Directories",
			execute: func(ctx context.Context) (string, error) {
				cmd := fmt.Sprintf("mkdir -p %s %s", w.paths.processDir, w.paths.logsDir)
				outcome, err := w.executor.Execute(ctx, cmd, "", w.opts.CommandTimeout)
				return outcome.Stdout, err
			},
		},
		{
			name: "Clean Stale Source",
			execute: func(ctx context.Context) (string, error) {
				cmd := fmt.Sprintf("rm -rf %s %s", w.paths.currentDir, w.paths.venvDir)
				outcome, err := w.executor.Execute(ctx, cmd, "", w.opts.CommandTimeout)
				return outcome.Stdout, err
			},
		},
		{
			name: "Clone Repository",
			execute: func(ctx context.Context) (string, error) {
				cmd := fmt.Sprintf(
					"git clone -b %s %s %s",
					w.req.Repository.Branch, w.req.Repository.URL, w.paths.currentDir,
				)
				outcome, err := w.executor.ExecuteWithRetry(
					ctx, cmd, "",
					w.opts.CloneTimeout, w.opts.MaxRetries, w.opts.RetryDelay,
				)
				return outcome.Stdout, err
			},
		},
		{
			name: "Create Virtual Environment",
			execute: func(ctx context.Context) (string, error) {
				cmd := fmt.Sprintf("python3 -m venv %s", w.paths.venvDir)
				outcome, err := w.executor.Execute(ctx, cmd, "", w.opts.CloneTimeout)
				return outcome.Stdout, err
			},
		},
		{
			name: "Install Dependencies",
			execute: func(ctx context.Context) (string, error) {
				manifest := w.paths.currentDir + "/requirements.txt"
				if _, err := w.executor.Execute(
					ctx, "test -f "+manifest, "", w.opts.CommandTimeout,
				); err != nil {
					// Only a non-zero exit means the manifest is absent;
					// a timeout or cancellation must fail the step.
					var exitErr command.ExitError
					if !errors.As(err, &exitErr) {
						return "", err
					}
					return "no dependency manifest, skipping", nil
				}
				cmd := fmt.Sprintf("%s/bin/pip install -r %s", w.paths.venvDir, manifest)
				outcome, err := w.executor.ExecuteWithRetry(
					ctx, cmd, w.paths.currentDir,
					w.opts.InstallTimeout, w.opts.MaxRetries, w.opts.RetryDelay,
				)
				return outcome.Stdout, err
			},
		},
		{
			name: "Write Config",
			execute: func(ctx context.Context) (string, error) {
				path, err := w.config.Write(w.ecosystem())
				if err != nil {
					return "", err
				}
				configPath = path
				return path, nil
			},
		},
		{
			name: "Register Process",
			execute: func(ctx context.Context) (string, error) {
				return "", w.supervisor.StartConfig(ctx, configPath)
			},
		},
		{
			name: "Save Process List",
			execute: func(ctx context.Context) (string, error) {
				return "", w.supervisor.Save(ctx)
			},
		},
	}

	for _, step := range steps {
		log.Printf("deploy %s: %s", w.req.Name, step.name)
		output, err := step.execute(ctx)
		if err != nil {
			w.rollback()
			resultCh <- Result{
				Success:     false,
				ProcessName: w.req.Name,
				Message:     fmt.Sprintf("deployment of %s failed", w.req.Name),
				Err:         fmt.Errorf("%s: %w", step.name, err),
				Error:       fmt.Sprintf("%s: %v", step.name, err),
				StepTrace:   trace,
			}
			return
		}
		trace = append(trace, StepResult{Step: step.name, Output: output})
	}

	resultCh <- Result{
		Success:        true,
		ProcessName:    w.req.Name,
		Message:        fmt.Sprintf("process %s deployed successfully", w.req.Name),
		ConfigFilePath: configPath,
		StepTrace:      trace,
	}
}

func (w *worker) ecosystem() *pm2.Ecosystem {
	return &pm2.Ecosystem{
		Name:             w.req.Name,
		Script:           w.paths.venvDir + "/bin/python",
		Args:             w.req.Script,
		Cwd:              w.paths.currentDir,
		Env:              w.req.EnvVars,
		AutoRestart:      w.req.AutoRestart,
		CronRestart:      w.req.Cron,
		Watch:            false,
		IgnoreWatch:      []string{"venv", "*.pyc", "__pycache__", "*.log"},
		MaxMemoryRestart: "1G",
		ErrorFile:        fmt.Sprintf("%s/%s-error.log", w.paths.logsDir, w.req.Name),
		OutFile:          fmt.Sprintf("%s/%s-out.log", w.paths.logsDir, w.req.Name),
	}
}

// rollback removes every artifact this pipeline created for the name.
// It runs on a fresh context so cleanup still happens after the
// deployment deadline fired; failures are logged, never re-raised.
func (w *worker) rollback() {
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.CommandTimeout*3)
	defer cancel()

	if err := w.supervisor.Delete(ctx, w.req.Name); err != nil {
		log.Printf("rollback %s: supervisor delete failed: %v", w.req.Name, err)
	}
	if err := w.config.Delete(w.req.Name); err != nil {
		log.Printf("rollback %s: config delete failed: %v", w.req.Name, err)
	}
	if _, err := w.executor.Execute(
		ctx, "rm -rf "+w.paths.processDir, "", w.opts.CommandTimeout,
	); err != nil {
		log.Printf("rollback %s: process dir removal failed: %v", w.req.Name, err)
	}
}
