// Package apps implements the console's application lifecycle operations.
package apps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xXMohitXx/Dead-Simple-Infra/internal/domain"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/protocol"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/repository"
)

// ErrNoAgents is returned when a command cannot be routed because no
// agent is connected. Commands are never queued.
var ErrNoAgents = errors.New("apps: no agents connected")

// ErrInvalidInput marks request validation failures.
var ErrInvalidInput = errors.New("apps: invalid input")

// Router delivers a command frame to a connected agent.
type Router interface {
	Route(msg protocol.Message) bool
}

// SecretSource decrypts an app's stored secrets for injection into the
// deploy command.
type SecretSource interface {
	Reveal(ctx context.Context, appID string) (map[string]string, error)
}

// Service owns app records and turns console requests into agent
// commands.
type Service struct {
	apps        repository.AppRepository
	deployments repository.DeploymentRepository
	secrets     repository.SecretRepository
	metrics     repository.MetricsRepository
	source      SecretSource
	router      Router
	logger      *slog.Logger
}

// New returns an app service.
func New(
	apps repository.AppRepository,
	deployments repository.DeploymentRepository,
	secrets repository.SecretRepository,
	metrics repository.MetricsRepository,
	source SecretSource,
	router Router,
	logger *slog.Logger,
) Service {
	return Service{
		apps:        apps,
		deployments: deployments,
		secrets:     secrets,
		metrics:     metrics,
		source:      source,
		router:      router,
		logger:      logger,
	}
}

// Create registers a new app in the idle state.
func (s Service) Create(ctx context.Context, name, repoURL, repoType string) (*domain.App, error) {
	name = strings.TrimSpace(name)
	repoURL = strings.TrimSpace(repoURL)
	if name == "" || repoURL == "" {
		return nil, fmt.Errorf("%w: name and repo_url are required", ErrInvalidInput)
	}
	if repoType == "" {
		repoType = "git"
	}
	now := time.Now().UTC()
	app := &domain.App{
		ID:        uuid.NewString(),
		Name:      name,
		RepoURL:   repoURL,
		RepoType:  repoType,
		Status:    domain.AppStatusIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.apps.CreateApp(ctx, app); err != nil {
		return nil, err
	}
	s.logger.Info("app created", "app_id", app.ID, "name", app.Name)
	return app, nil
}

// Get loads one app.
func (s Service) Get(ctx context.Context, appID string) (*domain.App, error) {
	return s.apps.GetAppByID(ctx, appID)
}

// List returns every registered app.
func (s Service) List(ctx context.Context) ([]domain.App, error) {
	return s.apps.ListApps(ctx)
}

// Delete removes an app and everything scoped to it. A best-effort stop
// command goes out first so the agent can tear down the container.
func (s Service) Delete(ctx context.Context, appID string) error {
	app, err := s.apps.GetAppByID(ctx, appID)
	if err != nil {
		return err
	}
	s.router.Route(protocol.Message{
		Type:    protocol.TypeStop,
		AppID:   app.ID,
		AppName: app.Name,
	})
	if err := s.secrets.DeleteSecretsByApp(ctx, appID); err != nil {
		return err
	}
	if err := s.deployments.DeleteDeploymentsByApp(ctx, appID); err != nil {
		return err
	}
	if err := s.apps.DeleteApp(ctx, appID); err != nil {
		return err
	}
	s.logger.Info("app deleted", "app_id", appID)
	return nil
}

// Deploy records a new deployment attempt and hands it to an agent.
// The app's secrets are decrypted and ride along as the container's
// environment.
func (s Service) Deploy(ctx context.Context, appID string) (*domain.Deployment, error) {
	app, err := s.apps.GetAppByID(ctx, appID)
	if err != nil {
		return nil, err
	}
	env, err := s.source.Reveal(ctx, appID)
	if err != nil {
		return nil, fmt.Errorf("reveal secrets: %w", err)
	}
	deployment := &domain.Deployment{
		ID:        uuid.NewString(),
		AppID:     app.ID,
		Status:    domain.DeploymentStatusPending,
		StartedAt: time.Now().UTC(),
	}
	if err := s.deployments.CreateDeployment(ctx, deployment); err != nil {
		return nil, err
	}
	if err := s.apps.UpdateAppStatus(ctx, app.ID, domain.AppStatusBuilding); err != nil {
		return nil, err
	}
	routed := s.router.Route(protocol.Message{
		Type:         protocol.TypeDeploy,
		DeploymentID: deployment.ID,
		AppID:        app.ID,
		RepoURL:      app.RepoURL,
		AppName:      app.Name,
		Env:          env,
	})
	if !routed {
		now := time.Now().UTC()
		if err := s.deployments.CompleteDeployment(ctx, deployment.ID, domain.DeploymentStatusFailed, now); err != nil {
			s.logger.Warn("mark deployment failed", "deployment_id", deployment.ID, "error", err)
		}
		if err := s.apps.UpdateAppStatus(ctx, app.ID, domain.AppStatusFailed); err != nil {
			s.logger.Warn("mark app failed", "app_id", app.ID, "error", err)
		}
		return nil, ErrNoAgents
	}
	s.logger.Info("deployment dispatched", "deployment_id", deployment.ID, "app_id", app.ID)
	return deployment, nil
}

// Stop asks an agent to stop the app's running container.
func (s Service) Stop(ctx context.Context, appID string) error {
	app, err := s.apps.GetAppByID(ctx, appID)
	if err != nil {
		return err
	}
	routed := s.router.Route(protocol.Message{
		Type:    protocol.TypeStop,
		AppID:   app.ID,
		AppName: app.Name,
	})
	if !routed {
		return ErrNoAgents
	}
	return nil
}

// Restart asks an agent to restart the app's container in place.
func (s Service) Restart(ctx context.Context, appID string) error {
	app, err := s.apps.GetAppByID(ctx, appID)
	if err != nil {
		return err
	}
	routed := s.router.Route(protocol.Message{
		Type:    protocol.TypeRestart,
		AppID:   app.ID,
		AppName: app.Name,
	})
	if !routed {
		return ErrNoAgents
	}
	return nil
}

// StatusView aggregates an app's current condition for the status
// endpoint.
type StatusView struct {
	App              domain.App
	LatestDeployment *domain.Deployment
	LatestSample     *domain.MetricsSample
}

// Status returns the app along with its latest deployment and metrics
// sample, when any exist.
func (s Service) Status(ctx context.Context, appID string) (*StatusView, error) {
	app, err := s.apps.GetAppByID(ctx, appID)
	if err != nil {
		return nil, err
	}
	view := &StatusView{App: *app}

	latest, err := s.deployments.GetLatestDeployment(ctx, appID)
	switch {
	case err == nil:
		view.LatestDeployment = latest
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	samples, err := s.metrics.ListSamplesByApp(ctx, appID, 1)
	if err != nil {
		return nil, err
	}
	if len(samples) > 0 {
		view.LatestSample = &samples[0]
	}
	return view, nil
}

// Deployments lists recent deployment attempts for an app.
func (s Service) Deployments(ctx context.Context, appID string, limit int) ([]domain.Deployment, error) {
	if _, err := s.apps.GetAppByID(ctx, appID); err != nil {
		return nil, err
	}
	return s.deployments.ListDeploymentsByApp(ctx, appID, limit)
}

// Metrics lists recent resource samples for an app, newest first.
func (s Service) Metrics(ctx context.Context, appID string, limit int) ([]domain.MetricsSample, error) {
	if _, err := s.apps.GetAppByID(ctx, appID); err != nil {
		return nil, err
	}
	return s.metrics.ListSamplesByApp(ctx, appID, limit)
}
