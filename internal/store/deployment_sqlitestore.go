package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/haukkala/procpilot/internal"
	"github.com/haukkala/procpilot/internal/util"
)

type DeploymentSQLiteStore struct {
	rdb, rwdb *sql.DB
}

func NewDeploymentSQLiteStore(rdb, rwdb *sql.DB) *DeploymentSQLiteStore {
	return &DeploymentSQLiteStore{rdb, rwdb}
}

func (store *DeploymentSQLiteStore) CreateDeployment(
	ctx context.Context,
	d *Deployment,
) error {
	query := `insert into deployments (
		deployment_id,
		process_name,
		kind,
		repo_url,
		branch,
		request,
		status
	)
	values ($1, $2, $3, $4, $5, $6, $7)
	returning created_on`
	return sqlscan.Get(
		ctx, store.rwdb, d, query,
		d.DeploymentID,
		d.ProcessName,
		d.Kind,
		d.RepoURL,
		d.Branch,
		d.Request,
		d.Status,
	)
}

func (store *DeploymentSQLiteStore) FinishDeployment(
	ctx context.Context,
	id string,
	status DeploymentStatus,
	deployError *string,
	endedOn *time.Time,
) error {
	query := `update deployments
	set status = $1,
		error = $2,
		ended_on = $3
	where deployment_id = $4`
	var ended *string
	if endedOn != nil {
		ended = util.AsPtr(endedOn.Format(internal.DBTimestampLayout))
	}
	_, err := store.rwdb.ExecContext(
		ctx, query,
		status,
		deployError,
		ended,
		id,
	)
	return err
}

func (store *DeploymentSQLiteStore) ReadDeploymentByID(
	ctx context.Context,
	id string,
) (*Deployment, error) {
	d := new(Deployment)
	query := "select * from deployments where deployment_id = $1"
	if err := sqlscan.Get(ctx, store.rdb, d, query, id); err != nil {
		return nil, err
	}
	return d, nil
}

// ReadLatestSucceeded returns the most recent successful deployment
// for a process name.
func (store *DeploymentSQLiteStore) ReadLatestSucceeded(
	ctx context.Context,
	processName string,
) (*Deployment, error) {
	d := new(Deployment)
	query := `select * from deployments
	where process_name = $1 and status = $2
	order by created_on desc
	limit 1`
	if err := sqlscan.Get(
		ctx, store.rdb, d, query, processName, StatusSucceeded,
	); err != nil {
		return nil, err
	}
	return d, nil
}

func (store *DeploymentSQLiteStore) ListDeployments(
	ctx context.Context,
	processName string,
	limit int64,
) ([]Deployment, error) {
	deployments := []Deployment{}
	query := `select * from deployments
	where process_name = $1
	order by created_on desc
	limit $2`
	if err := sqlscan.Select(
		ctx, store.rdb, &deployments, query, processName, limit,
	); err != nil {
		return nil, err
	}
	return deployments, nil
}

// DeleteDeploymentsBefore removes history rows older than the cutoff.
// Used by the daily retention job.
func (store *DeploymentSQLiteStore) DeleteDeploymentsBefore(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	query := "delete from deployments where created_on < $1"
	res, err := store.rwdb.ExecContext(
		ctx, query, cutoff.Format(internal.DBTimestampLayout),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
