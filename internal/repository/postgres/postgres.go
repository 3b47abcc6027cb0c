// Package postgres implements the repository interfaces on PostgreSQL
// via pgx.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xXMohitXx/Dead-Simple-Infra/internal/domain"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.AppRepository        = (*Repository)(nil)
	_ repository.DeploymentRepository = (*Repository)(nil)
	_ repository.SecretRepository     = (*Repository)(nil)
	_ repository.AgentRepository      = (*Repository)(nil)
	_ repository.MetricsRepository    = (*Repository)(nil)
)

// CreateApp inserts an application record.
func (r *Repository) CreateApp(ctx context.Context, app *domain.App) error {
	const query = `INSERT INTO apps (id, name, repo_url, repo_type, status, port, url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.pool.Exec(ctx, query, app.ID, app.Name, app.RepoURL, app.RepoType, app.Status, app.Port, app.URL, app.CreatedAt, app.UpdatedAt)
	return err
}

// GetAppByID fetches an app by identifier.
func (r *Repository) GetAppByID(ctx context.Context, id string) (*domain.App, error) {
	const query = `SELECT id, name, repo_url, repo_type, status, port, url, created_at, updated_at
		FROM apps WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	var a domain.App
	if err := row.Scan(&a.ID, &a.Name, &a.RepoURL, &a.RepoType, &a.Status, &a.Port, &a.URL, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// ListApps returns all registered apps, newest first.
func (r *Repository) ListApps(ctx context.Context) ([]domain.App, error) {
	const query = `SELECT id, name, repo_url, repo_type, status, port, url, created_at, updated_at
		FROM apps ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var apps []domain.App
	for rows.Next() {
		var a domain.App
		if err := rows.Scan(&a.ID, &a.Name, &a.RepoURL, &a.RepoType, &a.Status, &a.Port, &a.URL, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

// UpdateAppStatus overwrites an app's status. Last write wins: the
// transport carries no sequence numbers, so no ordering is enforced.
func (r *Repository) UpdateAppStatus(ctx context.Context, id, status string) error {
	const query = `UPDATE apps SET status = $2, updated_at = now() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SetAppEndpoint records the served port/URL when a deployment completes.
func (r *Repository) SetAppEndpoint(ctx context.Context, id string, port *int, url, status string) error {
	const query = `UPDATE apps SET port = $2, url = $3, status = $4, updated_at = now() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, port, url, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteApp removes an app and cascades to secrets and deployments.
func (r *Repository) DeleteApp(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM apps WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CreateDeployment inserts a deployment record.
func (r *Repository) CreateDeployment(ctx context.Context, dep *domain.Deployment) error {
	const query = `INSERT INTO deployments (id, app_id, status, build_logs, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	logs := dep.BuildLogs
	if logs == nil {
		logs = []string{}
	}
	_, err := r.pool.Exec(ctx, query, dep.ID, dep.AppID, dep.Status, logs, dep.StartedAt, dep.CompletedAt)
	return err
}

// ListDeploymentsByApp returns deployment history, newest first.
func (r *Repository) ListDeploymentsByApp(ctx context.Context, appID string, limit int) ([]domain.Deployment, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT id, app_id, status, build_logs, started_at, completed_at
		FROM deployments WHERE app_id = $1 ORDER BY started_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, appID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var deps []domain.Deployment
	for rows.Next() {
		var d domain.Deployment
		if err := rows.Scan(&d.ID, &d.AppID, &d.Status, &d.BuildLogs, &d.StartedAt, &d.CompletedAt); err != nil {
			return nil, err
		}
		deps = append(deps, d)
	}
	return deps, rows.Err()
}

// GetLatestDeployment returns the most recent deployment for an app.
func (r *Repository) GetLatestDeployment(ctx context.Context, appID string) (*domain.Deployment, error) {
	const query = `SELECT id, app_id, status, build_logs, started_at, completed_at
		FROM deployments WHERE app_id = $1 ORDER BY started_at DESC LIMIT 1`
	row := r.pool.QueryRow(ctx, query, appID)
	var d domain.Deployment
	if err := row.Scan(&d.ID, &d.AppID, &d.Status, &d.BuildLogs, &d.StartedAt, &d.CompletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// UpdateDeploymentStatus overwrites a deployment's status (last write wins).
func (r *Repository) UpdateDeploymentStatus(ctx context.Context, id, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE deployments SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CompleteDeployment records a terminal status together with the
// completion timestamp.
func (r *Repository) CompleteDeployment(ctx context.Context, id, status string, completedAt time.Time) error {
	const query = `UPDATE deployments SET status = $2, completed_at = $3 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, status, completedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteDeploymentsByApp removes deployment history for an app.
func (r *Repository) DeleteDeploymentsByApp(ctx context.Context, appID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM deployments WHERE app_id = $1`, appID)
	return err
}

// CreateSecret inserts an encrypted secret.
func (r *Repository) CreateSecret(ctx context.Context, secret *domain.Secret) error {
	const query = `INSERT INTO secrets (id, app_id, key, encrypted_value, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, secret.ID, secret.AppID, secret.Key, secret.EncryptedValue, secret.CreatedAt)
	return err
}

// ListSecretsByApp returns secrets for an app. Encrypted values are
// included; callers decide what to expose.
func (r *Repository) ListSecretsByApp(ctx context.Context, appID string) ([]domain.Secret, error) {
	const query = `SELECT id, app_id, key, encrypted_value, created_at
		FROM secrets WHERE app_id = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var secrets []domain.Secret
	for rows.Next() {
		var s domain.Secret
		if err := rows.Scan(&s.ID, &s.AppID, &s.Key, &s.EncryptedValue, &s.CreatedAt); err != nil {
			return nil, err
		}
		secrets = append(secrets, s)
	}
	return secrets, rows.Err()
}

// DeleteSecret removes a single secret.
func (r *Repository) DeleteSecret(ctx context.Context, appID, secretID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM secrets WHERE id = $1 AND app_id = $2`, secretID, appID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteSecretsByApp removes every secret belonging to an app.
func (r *Repository) DeleteSecretsByApp(ctx context.Context, appID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM secrets WHERE app_id = $1`, appID)
	return err
}

// UpsertAgent records an agent registration, refreshing liveness on
// repeat registrations.
func (r *Repository) UpsertAgent(ctx context.Context, agent *domain.Agent) error {
	const query = `INSERT INTO agents (id, name, status, registered_at, last_seen)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, last_seen = EXCLUDED.last_seen`
	_, err := r.pool.Exec(ctx, query, agent.ID, agent.Name, agent.Status, agent.RegisteredAt, agent.LastSeen)
	return err
}

// MarkAgentOffline flips an agent to offline at disconnect time.
func (r *Repository) MarkAgentOffline(ctx context.Context, id string, lastSeen time.Time) error {
	const query = `UPDATE agents SET status = $2, last_seen = $3 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, domain.AgentStatusOffline, lastSeen)
	return err
}

// ListAgents returns every agent that has ever registered.
func (r *Repository) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	const query = `SELECT id, name, status, registered_at, last_seen FROM agents ORDER BY registered_at`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var agents []domain.Agent
	for rows.Next() {
		var a domain.Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.Status, &a.RegisteredAt, &a.LastSeen); err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// InsertSample appends a metrics sample. Growth is unbounded; retention
// is an operational concern, not enforced here.
func (r *Repository) InsertSample(ctx context.Context, sample domain.MetricsSample) error {
	const query = `INSERT INTO metrics (app_id, cpu_percent, memory_mb, uptime_seconds, request_count, sampled_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, sample.AppID, sample.CPUPercent, sample.MemoryMB, sample.UptimeSeconds, sample.RequestCount, sample.Timestamp)
	return err
}

// ListSamplesByApp returns recent samples, newest first.
func (r *Repository) ListSamplesByApp(ctx context.Context, appID string, limit int) ([]domain.MetricsSample, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT app_id, cpu_percent, memory_mb, uptime_seconds, request_count, sampled_at
		FROM metrics WHERE app_id = $1 ORDER BY sampled_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, appID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var samples []domain.MetricsSample
	for rows.Next() {
		var s domain.MetricsSample
		if err := rows.Scan(&s.AppID, &s.CPUPercent, &s.MemoryMB, &s.UptimeSeconds, &s.RequestCount, &s.Timestamp); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}
