package httpapi

import (
	"time"

	"github.com/xXMohitXx/Dead-Simple-Infra/internal/domain"
)

type appResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	RepoURL   string    `json:"repo_url"`
	RepoType  string    `json:"repo_type"`
	Status    string    `json:"status"`
	Port      *int      `json:"port"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toAppResponse(app domain.App) appResponse {
	return appResponse{
		ID:        app.ID,
		Name:      app.Name,
		RepoURL:   app.RepoURL,
		RepoType:  app.RepoType,
		Status:    app.Status,
		Port:      app.Port,
		URL:       app.URL,
		CreatedAt: app.CreatedAt,
		UpdatedAt: app.UpdatedAt,
	}
}

type deploymentResponse struct {
	ID          string     `json:"id"`
	AppID       string     `json:"app_id"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func toDeploymentResponse(dep domain.Deployment) deploymentResponse {
	return deploymentResponse{
		ID:          dep.ID,
		AppID:       dep.AppID,
		Status:      dep.Status,
		StartedAt:   dep.StartedAt,
		CompletedAt: dep.CompletedAt,
	}
}

// secretResponse never carries the value, encrypted or not.
type secretResponse struct {
	ID        string    `json:"id"`
	AppID     string    `json:"app_id"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
}

func toSecretResponse(secret domain.Secret) secretResponse {
	return secretResponse{
		ID:        secret.ID,
		AppID:     secret.AppID,
		Key:       secret.Key,
		CreatedAt: secret.CreatedAt,
	}
}

type agentResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeen     time.Time `json:"last_seen"`
}

func toAgentResponse(agent domain.Agent) agentResponse {
	return agentResponse{
		ID:           agent.ID,
		Name:         agent.Name,
		Status:       agent.Status,
		RegisteredAt: agent.RegisteredAt,
		LastSeen:     agent.LastSeen,
	}
}

type sampleResponse struct {
	AppID         string    `json:"app_id"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryMB      float64   `json:"memory_mb"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	RequestCount  int64     `json:"request_count"`
	Timestamp     time.Time `json:"timestamp"`
}

func toSampleResponse(sample domain.MetricsSample) sampleResponse {
	return sampleResponse{
		AppID:         sample.AppID,
		CPUPercent:    sample.CPUPercent,
		MemoryMB:      sample.MemoryMB,
		UptimeSeconds: sample.UptimeSeconds,
		RequestCount:  sample.RequestCount,
		Timestamp:     sample.Timestamp,
	}
}
