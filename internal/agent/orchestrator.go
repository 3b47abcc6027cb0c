package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"log/slog"

	"github.com/xXMohitXx/Dead-Simple-Infra/internal/agent/docker"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/protocol"
)

// Container labels applied to everything this agent starts.
const (
	labelAppID        = "dsi.app_id"
	labelDeploymentID = "dsi.deployment_id"
)

// Runtime is the container engine surface the orchestrator drives.
type Runtime interface {
	BuildImage(ctx context.Context, dir, tag string, buildArgs map[string]*string, onOutput docker.BuildOutputCallback) error
	RunContainer(ctx context.Context, name, image string, env []string, labels map[string]string) (docker.ContainerInfo, error)
	StopContainer(ctx context.Context, containerID string, grace time.Duration) error
	RestartContainer(ctx context.Context, containerID string, grace time.Duration) error
	RemoveContainer(ctx context.Context, nameOrID string) error
	FollowLogs(ctx context.Context, containerID string, onLine docker.LogLineCallback) error
}

// Fetcher retrieves application source into a directory.
type Fetcher interface {
	Fetch(ctx context.Context, repoURL, dest string) error
}

// Workspace provides per-deployment build directories.
type Workspace interface {
	Prepare(deploymentID string) (string, error)
	Cleanup(path string) error
}

// Sender delivers event frames to the console.
type Sender interface {
	Send(msg protocol.Message) error
}

// TrackedContainer is a container this agent started and still owns.
type TrackedContainer struct {
	AppID       string
	ContainerID string
	Name        string
}

// Config carries the orchestrator's timeouts.
type Config struct {
	FetchTimeout time.Duration
	BuildTimeout time.Duration
	StopGrace    time.Duration
}

// Orchestrator executes deployment commands against the local container
// engine and reports progress back to the console.
type Orchestrator struct {
	runtime   Runtime
	fetcher   Fetcher
	workspace Workspace
	sender    Sender
	logger    *slog.Logger
	cfg       Config

	mu         sync.Mutex
	containers map[string]TrackedContainer
}

// NewOrchestrator wires an orchestrator.
func NewOrchestrator(runtime Runtime, fetcher Fetcher, ws Workspace, sender Sender, logger *slog.Logger, cfg Config) *Orchestrator {
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 10 * time.Second
	}
	return &Orchestrator{
		runtime:    runtime,
		fetcher:    fetcher,
		workspace:  ws,
		sender:     sender,
		logger:     logger,
		cfg:        cfg,
		containers: make(map[string]TrackedContainer),
	}
}

// SetSender swaps the event sink. Called when a new console session is
// established.
func (o *Orchestrator) SetSender(sender Sender) {
	o.mu.Lock()
	o.sender = sender
	o.mu.Unlock()
}

func (o *Orchestrator) send(msg protocol.Message) {
	o.mu.Lock()
	sender := o.sender
	o.mu.Unlock()
	if sender == nil {
		return
	}
	if err := sender.Send(msg); err != nil {
		o.logger.Warn("send event to console", "type", msg.Type, "error", err)
	}
}

func (o *Orchestrator) emitLog(appID, deploymentID, line string) {
	o.send(protocol.NewLog(appID, deploymentID, line))
}

func (o *Orchestrator) emitStatus(appID, deploymentID, status string) {
	o.send(protocol.NewStatusUpdate(appID, deploymentID, status))
}

func (o *Orchestrator) fail(appID, deploymentID, stage string, err error) {
	o.logger.Error("deployment failed", "app_id", appID, "deployment_id", deploymentID, "stage", stage, "error", err)
	o.emitLog(appID, deploymentID, fmt.Sprintf("%s failed: %v", stage, err))
	o.emitStatus(appID, deploymentID, protocol.StatusFailed)
}

// Tracked returns a snapshot of the containers this agent owns.
func (o *Orchestrator) Tracked() []TrackedContainer {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]TrackedContainer, 0, len(o.containers))
	for _, tracked := range o.containers {
		out = append(out, tracked)
	}
	return out
}

func (o *Orchestrator) track(tc TrackedContainer) {
	o.mu.Lock()
	o.containers[tc.AppID] = tc
	o.mu.Unlock()
}

func (o *Orchestrator) untrack(appID string) (TrackedContainer, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	tc, ok := o.containers[appID]
	if ok {
		delete(o.containers, appID)
	}
	return tc, ok
}

func (o *Orchestrator) lookup(appID string) (TrackedContainer, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	tc, ok := o.containers[appID]
	return tc, ok
}

// HandleDeploy runs one deployment end to end: fetch, build, replace
// the previous container, start the new one and begin following its
// logs. ctx is the console session context; cancelling it stops the
// log follower but not an already running container.
func (o *Orchestrator) HandleDeploy(ctx context.Context, msg protocol.Message) {
	appID, deploymentID := msg.AppID, msg.DeploymentID
	o.logger.Info("deployment started", "app_id", appID, "deployment_id", deploymentID, "repo_url", msg.RepoURL)
	o.emitStatus(appID, deploymentID, protocol.StatusBuilding)
	o.emitLog(appID, deploymentID, fmt.Sprintf("Starting deployment of %s", msg.AppName))

	dir, err := o.workspace.Prepare(deploymentID)
	if err != nil {
		o.fail(appID, deploymentID, "workspace", err)
		return
	}
	defer func() {
		if err := o.workspace.Cleanup(dir); err != nil {
			o.logger.Warn("workspace cleanup", "deployment_id", deploymentID, "error", err)
		}
	}()

	o.emitLog(appID, deploymentID, fmt.Sprintf("Cloning %s", msg.RepoURL))
	fetchCtx := ctx
	if o.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, o.cfg.FetchTimeout)
		defer cancel()
	}
	if err := o.fetcher.Fetch(fetchCtx, msg.RepoURL, dir); err != nil {
		o.fail(appID, deploymentID, "fetch", &FetchError{RepoURL: msg.RepoURL, Err: err})
		return
	}

	tag := protocol.ImageTag(msg.AppName, deploymentID)
	if _, err := os.Stat(filepath.Join(dir, "Dockerfile")); err != nil {
		o.fail(appID, deploymentID, "build", &BuildError{Image: tag, Err: errors.New("Dockerfile not found in repository")})
		return
	}
	o.emitLog(appID, deploymentID, fmt.Sprintf("Building image %s", tag))
	buildCtx := ctx
	if o.cfg.BuildTimeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(ctx, o.cfg.BuildTimeout)
		defer cancel()
	}
	err = o.runtime.BuildImage(buildCtx, dir, tag, nil, func(line string) {
		o.emitLog(appID, deploymentID, line)
	})
	if err != nil {
		o.fail(appID, deploymentID, "build", &BuildError{Image: tag, Err: err})
		return
	}

	// replace any previous container for this app; the app is briefly
	// down between teardown and the new start
	name := protocol.ContainerName(msg.AppName, appID)
	previous := name
	if tc, ok := o.untrack(appID); ok {
		previous = tc.ContainerID
	}
	o.emitLog(appID, deploymentID, "Stopping previous container")
	if err := o.runtime.StopContainer(ctx, previous, o.cfg.StopGrace); err != nil && !errors.Is(err, docker.ErrNotFound) {
		o.logger.Warn("stop previous container", "app_id", appID, "error", err)
	}
	if err := o.runtime.RemoveContainer(ctx, previous); err != nil {
		o.logger.Warn("remove previous container", "app_id", appID, "error", err)
	}

	o.emitLog(appID, deploymentID, fmt.Sprintf("Starting container %s", name))
	labels := map[string]string{
		labelAppID:        appID,
		labelDeploymentID: deploymentID,
	}
	var env []string
	for key, value := range msg.Env {
		env = append(env, key+"="+value)
	}
	sort.Strings(env)
	info, err := o.runtime.RunContainer(ctx, name, tag, env, labels)
	if err != nil {
		o.fail(appID, deploymentID, "start", &StartError{Container: name, Err: err})
		return
	}
	o.track(TrackedContainer{AppID: appID, ContainerID: info.ID, Name: name})

	go o.followLogs(ctx, appID, info.ID)

	url := fmt.Sprintf("http://localhost:%d", info.HostPort)
	port := info.HostPort
	o.send(protocol.Message{
		Type:         protocol.TypeDeploymentComplete,
		AppID:        appID,
		DeploymentID: deploymentID,
		Status:       protocol.StatusRunning,
		Port:         &port,
		URL:          url,
		ContainerID:  info.ID,
	})
	o.emitStatus(appID, deploymentID, protocol.StatusRunning)
	o.emitLog(appID, deploymentID, fmt.Sprintf("Deployment complete, app available at %s", url))
	o.logger.Info("deployment complete", "app_id", appID, "deployment_id", deploymentID, "container_id", info.ID, "port", port)
}

// followLogs relays container output to the console until the session
// ends or the container stops.
func (o *Orchestrator) followLogs(ctx context.Context, appID, containerID string) {
	err := o.runtime.FollowLogs(ctx, containerID, func(line string) {
		o.emitLog(appID, "", line)
	})
	if err != nil && ctx.Err() == nil {
		o.logger.Warn("log follow ended", "app_id", appID, "container_id", containerID, "error", err)
	}
}

// HandleStop stops and removes the app's container.
func (o *Orchestrator) HandleStop(ctx context.Context, msg protocol.Message) {
	appID := msg.AppID
	tc, ok := o.untrack(appID)
	target := tc.ContainerID
	if !ok {
		// not started in this session, address it by derived name
		target = protocol.ContainerName(msg.AppName, appID)
	}
	if err := o.runtime.StopContainer(ctx, target, o.cfg.StopGrace); err != nil {
		o.logger.Warn("stop container", "app_id", appID, "error", err)
	}
	if err := o.runtime.RemoveContainer(ctx, target); err != nil {
		o.logger.Warn("remove container", "app_id", appID, "error", err)
	}
	o.emitStatus(appID, "", protocol.StatusStopped)
	o.emitLog(appID, "", "Container stopped")
	o.logger.Info("container stopped", "app_id", appID)
}

// HandleRestart restarts the app's container in place.
func (o *Orchestrator) HandleRestart(ctx context.Context, msg protocol.Message) {
	appID := msg.AppID
	tc, ok := o.lookup(appID)
	target := tc.ContainerID
	if !ok {
		target = protocol.ContainerName(msg.AppName, appID)
	}
	if err := o.runtime.RestartContainer(ctx, target, o.cfg.StopGrace); err != nil {
		o.logger.Warn("restart container", "app_id", appID, "error", err)
		o.emitStatus(appID, "", protocol.StatusFailed)
		return
	}
	o.emitStatus(appID, "", protocol.StatusRunning)
	o.emitLog(appID, "", "Container restarted")
	o.logger.Info("container restarted", "app_id", appID)
}
