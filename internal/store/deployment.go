package store

import (
	"time"
)

type DeploymentStatus string

const (
	StatusRunning   DeploymentStatus = "running"
	StatusSucceeded DeploymentStatus = "succeeded"
	StatusFailed    DeploymentStatus = "failed"
)

type DeploymentKind string

const (
	KindCreate DeploymentKind = "create"
	KindUpdate DeploymentKind = "update"
)

// Deployment is one recorded deployment attempt. Request holds the
// original request JSON so updates can re-run a full redeploy with the
// same parameters.
type Deployment struct {
	DeploymentID string
	ProcessName  string
	Kind         DeploymentKind
	RepoURL      string
	Branch       string
	Request      string
	Status       DeploymentStatus
	Error        *string
	CreatedOn    time.Time
	EndedOn      *time.Time
}
