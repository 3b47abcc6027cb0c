package domain

import "time"

// App statuses. Deployment statuses live alongside because the two state
// machines share every value except idle/pending.
const (
	AppStatusIdle     = "idle"
	AppStatusBuilding = "building"
	AppStatusRunning  = "running"
	AppStatusFailed   = "failed"
	AppStatusStopped  = "stopped"
)

// App is a deployable application registered with the console.
type App struct {
	ID        string
	Name      string
	RepoURL   string
	RepoType  string
	Status    string
	Port      *int
	URL       string
	CreatedAt time.Time
	UpdatedAt time.Time
}
