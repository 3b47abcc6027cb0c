package repository

import (
	"context"
	"time"

	"github.com/xXMohitXx/Dead-Simple-Infra/internal/domain"
)

// AppRepository persists application records.
type AppRepository interface {
	CreateApp(ctx context.Context, app *domain.App) error
	GetAppByID(ctx context.Context, id string) (*domain.App, error)
	ListApps(ctx context.Context) ([]domain.App, error)
	UpdateAppStatus(ctx context.Context, id, status string) error
	SetAppEndpoint(ctx context.Context, id string, port *int, url, status string) error
	DeleteApp(ctx context.Context, id string) error
}

// DeploymentRepository stores deployment history.
type DeploymentRepository interface {
	CreateDeployment(ctx context.Context, dep *domain.Deployment) error
	ListDeploymentsByApp(ctx context.Context, appID string, limit int) ([]domain.Deployment, error)
	GetLatestDeployment(ctx context.Context, appID string) (*domain.Deployment, error)
	UpdateDeploymentStatus(ctx context.Context, id, status string) error
	CompleteDeployment(ctx context.Context, id, status string, completedAt time.Time) error
	DeleteDeploymentsByApp(ctx context.Context, appID string) error
}

// SecretRepository persists encrypted secrets.
type SecretRepository interface {
	CreateSecret(ctx context.Context, secret *domain.Secret) error
	ListSecretsByApp(ctx context.Context, appID string) ([]domain.Secret, error)
	DeleteSecret(ctx context.Context, appID, secretID string) error
	DeleteSecretsByApp(ctx context.Context, appID string) error
}

// AgentRepository tracks agents that have registered with the console.
type AgentRepository interface {
	UpsertAgent(ctx context.Context, agent *domain.Agent) error
	MarkAgentOffline(ctx context.Context, id string, lastSeen time.Time) error
	ListAgents(ctx context.Context) ([]domain.Agent, error)
}

// MetricsRepository appends resource-usage samples.
type MetricsRepository interface {
	InsertSample(ctx context.Context, sample domain.MetricsSample) error
	ListSamplesByApp(ctx context.Context, appID string, limit int) ([]domain.MetricsSample, error)
}
