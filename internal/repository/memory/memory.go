// Package memory provides a mutex-guarded in-memory implementation of
// the repository interfaces, used by tests and single-node development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xXMohitXx/Dead-Simple-Infra/internal/domain"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/repository"
)

// Store keeps every aggregate in process memory.
type Store struct {
	mu          sync.RWMutex
	apps        map[string]domain.App
	deployments map[string]domain.Deployment
	secrets     map[string]domain.Secret
	agents      map[string]domain.Agent
	samples     []domain.MetricsSample
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		apps:        make(map[string]domain.App),
		deployments: make(map[string]domain.Deployment),
		secrets:     make(map[string]domain.Secret),
		agents:      make(map[string]domain.Agent),
	}
}

var (
	_ repository.AppRepository        = (*Store)(nil)
	_ repository.DeploymentRepository = (*Store)(nil)
	_ repository.SecretRepository     = (*Store)(nil)
	_ repository.AgentRepository      = (*Store)(nil)
	_ repository.MetricsRepository    = (*Store)(nil)
)

func (s *Store) CreateApp(_ context.Context, app *domain.App) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps[app.ID] = *app
	return nil
}

func (s *Store) GetAppByID(_ context.Context, id string) (*domain.App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := app
	return &copied, nil
}

func (s *Store) ListApps(_ context.Context) ([]domain.App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	apps := make([]domain.App, 0, len(s.apps))
	for _, app := range s.apps {
		apps = append(apps, app)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].CreatedAt.After(apps[j].CreatedAt) })
	return apps, nil
}

func (s *Store) UpdateAppStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return repository.ErrNotFound
	}
	app.Status = status
	app.UpdatedAt = time.Now().UTC()
	s.apps[id] = app
	return nil
}

func (s *Store) SetAppEndpoint(_ context.Context, id string, port *int, url, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return repository.ErrNotFound
	}
	app.Port = port
	app.URL = url
	app.Status = status
	app.UpdatedAt = time.Now().UTC()
	s.apps[id] = app
	return nil
}

func (s *Store) DeleteApp(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.apps, id)
	return nil
}

func (s *Store) CreateDeployment(_ context.Context, dep *domain.Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *dep
	if copied.BuildLogs == nil {
		copied.BuildLogs = []string{}
	}
	s.deployments[dep.ID] = copied
	return nil
}

func (s *Store) ListDeploymentsByApp(_ context.Context, appID string, limit int) ([]domain.Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var deps []domain.Deployment
	for _, dep := range s.deployments {
		if dep.AppID == appID {
			deps = append(deps, dep)
		}
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].StartedAt.After(deps[j].StartedAt) })
	if limit > 0 && len(deps) > limit {
		deps = deps[:limit]
	}
	return deps, nil
}

func (s *Store) GetLatestDeployment(ctx context.Context, appID string) (*domain.Deployment, error) {
	deps, err := s.ListDeploymentsByApp(ctx, appID, 1)
	if err != nil {
		return nil, err
	}
	if len(deps) == 0 {
		return nil, repository.ErrNotFound
	}
	return &deps[0], nil
}

func (s *Store) UpdateDeploymentStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dep, ok := s.deployments[id]
	if !ok {
		return repository.ErrNotFound
	}
	dep.Status = status
	s.deployments[id] = dep
	return nil
}

func (s *Store) CompleteDeployment(_ context.Context, id, status string, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dep, ok := s.deployments[id]
	if !ok {
		return repository.ErrNotFound
	}
	dep.Status = status
	dep.CompletedAt = &completedAt
	s.deployments[id] = dep
	return nil
}

func (s *Store) DeleteDeploymentsByApp(_ context.Context, appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, dep := range s.deployments {
		if dep.AppID == appID {
			delete(s.deployments, id)
		}
	}
	return nil
}

func (s *Store) CreateSecret(_ context.Context, secret *domain.Secret) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[secret.ID] = *secret
	return nil
}

func (s *Store) ListSecretsByApp(_ context.Context, appID string) ([]domain.Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var secrets []domain.Secret
	for _, secret := range s.secrets {
		if secret.AppID == appID {
			secrets = append(secrets, secret)
		}
	}
	sort.Slice(secrets, func(i, j int) bool { return secrets[i].CreatedAt.Before(secrets[j].CreatedAt) })
	return secrets, nil
}

func (s *Store) DeleteSecret(_ context.Context, appID, secretID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	secret, ok := s.secrets[secretID]
	if !ok || secret.AppID != appID {
		return repository.ErrNotFound
	}
	delete(s.secrets, secretID)
	return nil
}

func (s *Store) DeleteSecretsByApp(_ context.Context, appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, secret := range s.secrets {
		if secret.AppID == appID {
			delete(s.secrets, id)
		}
	}
	return nil
}

func (s *Store) UpsertAgent(_ context.Context, agent *domain.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.agents[agent.ID]; ok {
		existing.Status = agent.Status
		existing.LastSeen = agent.LastSeen
		s.agents[agent.ID] = existing
		return nil
	}
	s.agents[agent.ID] = *agent
	return nil
}

func (s *Store) MarkAgentOffline(_ context.Context, id string, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[id]
	if !ok {
		return nil
	}
	agent.Status = domain.AgentStatusOffline
	agent.LastSeen = lastSeen
	s.agents[id] = agent
	return nil
}

func (s *Store) ListAgents(_ context.Context) ([]domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agents := make([]domain.Agent, 0, len(s.agents))
	for _, agent := range s.agents {
		agents = append(agents, agent)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].RegisteredAt.Before(agents[j].RegisteredAt) })
	return agents, nil
}

func (s *Store) InsertSample(_ context.Context, sample domain.MetricsSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
	return nil
}

func (s *Store) ListSamplesByApp(_ context.Context, appID string, limit int) ([]domain.MetricsSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var samples []domain.MetricsSample
	for _, sample := range s.samples {
		if sample.AppID == appID {
			samples = append(samples, sample)
		}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Timestamp.After(samples[j].Timestamp) })
	if limit > 0 && len(samples) > limit {
		samples = samples[:limit]
	}
	return samples, nil
}
