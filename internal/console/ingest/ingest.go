// Package ingest applies agent-reported events to the console's state.
package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/xXMohitXx/Dead-Simple-Infra/internal/domain"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/protocol"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/repository"
)

// Publisher fans an event payload out to log stream subscribers.
type Publisher interface {
	Publish(appID string, payload []byte)
}

// Processor turns agent frames into state transitions. Updates are
// last-write-wins in arrival order; the console never second-guesses an
// agent's reported status.
type Processor struct {
	apps        repository.AppRepository
	deployments repository.DeploymentRepository
	metrics     repository.MetricsRepository
	publisher   Publisher
	log         *slog.Logger
}

// New wires a Processor against the console's repositories and log hub.
func New(
	apps repository.AppRepository,
	deployments repository.DeploymentRepository,
	metrics repository.MetricsRepository,
	publisher Publisher,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		apps:        apps,
		deployments: deployments,
		metrics:     metrics,
		publisher:   publisher,
		log:         logger,
	}
}

// Process dispatches one agent frame. Unknown frame types are logged and
// dropped; a malformed frame never tears down the agent session.
func (p *Processor) Process(ctx context.Context, msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeLog:
		p.handleLog(msg)
	case protocol.TypeStatusUpdate:
		p.handleStatusUpdate(ctx, msg)
	case protocol.TypeMetrics:
		p.handleMetrics(ctx, msg)
	case protocol.TypeDeploymentComplete:
		p.handleDeploymentComplete(ctx, msg)
	default:
		p.log.Warn("unknown agent frame", "type", msg.Type)
	}
}

func (p *Processor) handleLog(msg protocol.Message) {
	if msg.AppID == "" {
		p.log.Warn("log frame without app_id dropped")
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		p.log.Error("marshal log frame", "error", err)
		return
	}
	p.publisher.Publish(msg.AppID, payload)
}

func (p *Processor) handleStatusUpdate(ctx context.Context, msg protocol.Message) {
	if msg.AppID == "" || msg.Status == "" {
		p.log.Warn("status_update frame missing fields", "app_id", msg.AppID, "status", msg.Status)
		return
	}
	if err := p.apps.UpdateAppStatus(ctx, msg.AppID, msg.Status); err != nil {
		p.log.Error("update app status", "app_id", msg.AppID, "error", err)
	}
	if msg.DeploymentID != "" {
		if err := p.deployments.UpdateDeploymentStatus(ctx, msg.DeploymentID, msg.Status); err != nil {
			p.log.Error("update deployment status", "deployment_id", msg.DeploymentID, "error", err)
		}
	}
	// status changes are visible on the app's log stream too
	if payload, err := json.Marshal(msg); err == nil {
		p.publisher.Publish(msg.AppID, payload)
	}
}

func (p *Processor) handleMetrics(ctx context.Context, msg protocol.Message) {
	if msg.Data == nil || msg.Data.AppID == "" {
		p.log.Warn("metrics frame without data dropped")
		return
	}
	sample := domain.MetricsSample{
		AppID:         msg.Data.AppID,
		CPUPercent:    msg.Data.CPUPercent,
		MemoryMB:      msg.Data.MemoryMB,
		UptimeSeconds: msg.Data.UptimeSeconds,
		RequestCount:  msg.Data.RequestCount,
		Timestamp:     time.Now().UTC(),
	}
	if err := p.metrics.InsertSample(ctx, sample); err != nil {
		p.log.Error("insert metrics sample", "app_id", sample.AppID, "error", err)
	}
}

func (p *Processor) handleDeploymentComplete(ctx context.Context, msg protocol.Message) {
	if msg.AppID == "" {
		p.log.Warn("deployment_complete frame without app_id dropped")
		return
	}
	status := msg.Status
	if status == "" {
		status = protocol.StatusRunning
	}
	if err := p.apps.SetAppEndpoint(ctx, msg.AppID, msg.Port, msg.URL, status); err != nil {
		p.log.Error("record app endpoint", "app_id", msg.AppID, "error", err)
	}
	if msg.DeploymentID != "" {
		if err := p.deployments.CompleteDeployment(ctx, msg.DeploymentID, status, time.Now().UTC()); err != nil {
			p.log.Error("complete deployment", "deployment_id", msg.DeploymentID, "error", err)
		}
	}
	if payload, err := json.Marshal(msg); err == nil {
		p.publisher.Publish(msg.AppID, payload)
	}
}
