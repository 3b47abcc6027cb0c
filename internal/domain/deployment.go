package domain

import "time"

// Deployment captures a single deployment attempt for an app.
//
// Status moves pending -> building -> {running, failed}; stopped is only
// reachable from running through an explicit stop command.
type Deployment struct {
	ID          string
	AppID       string
	Status      string
	BuildLogs   []string
	StartedAt   time.Time
	CompletedAt *time.Time
}

const (
	DeploymentStatusPending  = "pending"
	DeploymentStatusBuilding = "building"
	DeploymentStatusRunning  = "running"
	DeploymentStatusFailed   = "failed"
	DeploymentStatusStopped  = "stopped"
)
