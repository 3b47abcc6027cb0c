package domain

import "time"

// Agent is a remote execution agent known to the console.
type Agent struct {
	ID           string
	Name         string
	Status       string
	RegisteredAt time.Time
	LastSeen     time.Time
}

const (
	AgentStatusOnline  = "online"
	AgentStatusOffline = "offline"
)
