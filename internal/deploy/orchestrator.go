package deploy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/haukkala/procpilot/internal/locker"
	"github.com/haukkala/procpilot/internal/pm2"
	"github.com/haukkala/procpilot/internal/store"
	"github.com/haukkala/procpilot/internal/util"
)

// HistoryStore records deployment attempts and serves the last
// successful request back for full redeploys.
type HistoryStore interface {
	CreateDeployment(ctx context.Context, d *store.Deployment) error
	FinishDeployment(
		ctx context.Context, id string,
		status store.DeploymentStatus, deployError *string, endedOn *time.Time,
	) error
	ReadLatestSucceeded(ctx context.Context, processName string) (*store.Deployment, error)
	ListDeployments(ctx context.Context, processName string, limit int64) ([]store.Deployment, error)
}

type Options struct {
	BaseDir        string
	CommandTimeout time.Duration
	CloneTimeout   time.Duration
	InstallTimeout time.Duration
	DeployTimeout  time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
}

func (o Options) withDefaults() Options {
	if o.BaseDir == "" {
		o.BaseDir = "/home/pm2"
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 30 * time.Second
	}
	if o.CloneTimeout <= 0 {
		o.CloneTimeout = 300 * time.Second
	}
	if o.InstallTimeout <= 0 {
		o.InstallTimeout = 600 * time.Second
	}
	if o.DeployTimeout <= 0 {
		o.DeployTimeout = 600 * time.Second
	}
	if o.MaxRetries < 1 {
		o.MaxRetries = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	return o
}

func NewOrchestrator(
	executor Executor,
	supervisor Supervisor,
	config ConfigMaterializer,
	locks *locker.Registry,
	history HistoryStore,
	opts Options,
) *Orchestrator {
	return &Orchestrator{
		executor:   executor,
		supervisor: supervisor,
		config:     config,
		locks:      locks,
		history:    history,
		opts:       opts.withDefaults(),
		cancels:    NewCancelMap[string](),
	}
}

// Orchestrator serializes deployment operations per process name,
// bounds each pipeline with a deadline, and rolls back on failure. It
// runs on the caller's context; the pipeline itself runs in a separate
// goroutine so minutes-long commands never block request handling.
type Orchestrator struct {
	executor   Executor
	supervisor Supervisor
	config     ConfigMaterializer
	locks      *locker.Registry
	history    HistoryStore
	opts       Options
	cancels    *CancelMap[string]
}

// Create provisions a new process. Fails with AlreadyExistsError if a
// configuration artifact for the name exists; this is checked before
// lock acquisition to fail fast without contention, and re-checked
// under the lock to close the race with a concurrent Create.
func (o *Orchestrator) Create(ctx context.Context, req Request) (*Result, error) {
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if o.config.Exists(req.Name) {
		return nil, AlreadyExistsError{Name: req.Name}
	}

	lock := o.locks.Acquire(req.Name)
	defer lock.Release()

	if o.config.Exists(req.Name) {
		return nil, AlreadyExistsError{Name: req.Name}
	}

	return o.deploy(ctx, req, store.KindCreate, lock)
}

// Update re-runs the full provisioning pipeline for an existing
// process with the parameters of its last successful deployment.
// Fails with NotFoundError if no configuration artifact exists.
func (o *Orchestrator) Update(ctx context.Context, name string) (*Result, error) {
	if err := validateProcessName(name); err != nil {
		return nil, err
	}
	if !o.config.Exists(name) {
		return nil, NotFoundError{Name: name}
	}

	lock := o.locks.Acquire(name)
	defer lock.Release()

	if !o.config.Exists(name) {
		return nil, NotFoundError{Name: name}
	}

	last, err := o.history.ReadLatestSucceeded(ctx, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFoundError{Name: name}
		}
		return nil, err
	}
	var req Request
	if err := json.Unmarshal([]byte(last.Request), &req); err != nil {
		return nil, fmt.Errorf("stored request for %s is unreadable: %w", name, err)
	}

	return o.deploy(ctx, req.WithDefaults(), store.KindUpdate, lock)
}

// deploy runs the pipeline under the caller-held lock, bounded by the
// deployment deadline, recording the attempt in the history store. The
// lock is re-touched on a heartbeat while the pipeline runs so a long
// healthy deployment is never mistaken for an abandoned one.
func (o *Orchestrator) deploy(
	ctx context.Context,
	req Request,
	kind store.DeploymentKind,
	lock *locker.Lock,
) (*Result, error) {
	requestJSON, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	record := &store.Deployment{
		DeploymentID: uuid.NewString(),
		ProcessName:  req.Name,
		Kind:         kind,
		RepoURL:      req.Repository.URL,
		Branch:       req.Repository.Branch,
		Request:      string(requestJSON),
		Status:       store.StatusRunning,
	}
	if err := o.history.CreateDeployment(ctx, record); err != nil {
		return nil, err
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.cancels.AddCancel(req.Name, cancel)
	defer o.cancels.RemoveCancel(req.Name)

	w := &worker{
		req:        req,
		paths:      newProcessPaths(o.opts.BaseDir, req.Name),
		executor:   o.executor,
		config:     o.config,
		supervisor: o.supervisor,
		opts:       o.opts,
	}
	resultCh := make(chan Result, 1)
	go w.run(workerCtx, resultCh)

	deadline := time.NewTimer(o.opts.DeployTimeout)
	defer deadline.Stop()
	heartbeat := time.NewTicker(o.locks.TouchInterval())
	defer heartbeat.Stop()

	for {
		select {
		case result := <-resultCh:
			o.finish(record.DeploymentID, &result)
			if !result.Success {
				return &result, result.Err
			}
			return &result, nil
		case <-heartbeat.C:
			lock.Touch()
		case <-deadline.C:
			// Terminate the worker; its rollback runs on a fresh context
			// and the buffered channel lets it emit without a reader.
			cancel()
			err := DeployTimeoutError{Name: req.Name}
			o.finish(record.DeploymentID, &Result{
				Success:     false,
				ProcessName: req.Name,
				Error:       err.Error(),
			})
			return nil, err
		case <-ctx.Done():
			cancel()
			o.finish(record.DeploymentID, &Result{
				Success:     false,
				ProcessName: req.Name,
				Error:       ctx.Err().Error(),
			})
			return nil, ctx.Err()
		}
	}
}

func (o *Orchestrator) finish(deploymentID string, result *Result) {
	status := store.StatusSucceeded
	var deployError *string
	if !result.Success {
		status = store.StatusFailed
		deployError = util.AsPtr(result.Error)
	}
	if err := o.history.FinishDeployment(
		context.Background(),
		deploymentID,
		status,
		deployError,
		util.AsPtr(time.Now().UTC()),
	); err != nil {
		log.Printf("err recording deployment %s outcome: %v", deploymentID, err)
	}
}

// Delete unregisters a process and removes its artifacts. When the
// supervisor reports the process online and force is false it fails
// with SupervisorStateError instead of deleting a live resource.
// Removal of the config artifact and directory tree is unconditional
// and idempotent regardless of supervisor-interaction outcome.
func (o *Orchestrator) Delete(ctx context.Context, name string, force bool) (*Result, error) {
	if err := validateProcessName(name); err != nil {
		return nil, err
	}

	lock := o.locks.Acquire(name)
	defer lock.Release()

	proc, err := o.supervisor.Get(ctx, name)
	if err != nil {
		var notFound pm2.ProcessNotFoundError
		if !errors.As(err, &notFound) {
			log.Printf("delete %s: supervisor list failed: %v", name, err)
		}
	}
	if proc != nil {
		if proc.IsOnline() && !force {
			return nil, SupervisorStateError{
				Name: name,
				Message: fmt.Sprintf(
					"process %s is currently running, stop it first or pass force", name,
				),
			}
		}
		if err := o.supervisor.Delete(ctx, name); err != nil {
			log.Printf("delete %s: supervisor delete failed: %v", name, err)
		} else if err := o.supervisor.Save(ctx); err != nil {
			log.Printf("delete %s: supervisor save failed: %v", name, err)
		}
	}

	if err := o.config.Delete(name); err != nil {
		return nil, err
	}
	paths := newProcessPaths(o.opts.BaseDir, name)
	if _, err := o.executor.Execute(
		ctx, "rm -rf "+paths.processDir, "", o.opts.CommandTimeout,
	); err != nil {
		return nil, err
	}

	return &Result{
		Success:     true,
		ProcessName: name,
		Message:     fmt.Sprintf("process %s deleted successfully", name),
	}, nil
}

// Cancel terminates the in-flight pipeline for name, if any.
func (o *Orchestrator) Cancel(name string) bool {
	return o.cancels.Call(name)
}

// GetConfig returns the artifact path and content for a process.
func (o *Orchestrator) GetConfig(name string) (string, string, error) {
	if err := validateProcessName(name); err != nil {
		return "", "", err
	}
	if !o.config.Exists(name) {
		return "", "", NotFoundError{Name: name}
	}
	content, err := o.config.Read(name)
	if err != nil {
		return "", "", err
	}
	return o.config.Path(name), content, nil
}

// History lists recorded deployment attempts for a process.
func (o *Orchestrator) History(
	ctx context.Context, name string, limit int64,
) ([]store.Deployment, error) {
	deployments, err := o.history.ListDeployments(ctx, name, limit)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return deployments, nil
}
