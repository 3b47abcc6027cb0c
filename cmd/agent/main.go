package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/xXMohitXx/Dead-Simple-Infra/internal/agent"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/agent/docker"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/agent/source"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/agent/workspace"
	"github.com/xXMohitXx/Dead-Simple-Infra/pkg/config"
	"github.com/xXMohitXx/Dead-Simple-Infra/pkg/logger"
)

func main() {
	cfg := config.LoadAgentConfig()
	log := logger.New("agent", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dockerClient, err := docker.New(cfg.DockerHost)
	if err != nil {
		log.Error("failed to create docker client", "error", err)
		os.Exit(1)
	}
	defer dockerClient.Close()

	if err := dockerClient.Ping(ctx); err != nil {
		log.Error("docker ping failed", "error", err)
		os.Exit(1)
	}

	workspaceManager, err := workspace.New(cfg.Workdir)
	if err != nil {
		log.Error("workspace init failed", "error", err, "workdir", cfg.Workdir)
		os.Exit(1)
	}

	orchestrator := agent.NewOrchestrator(dockerClient, source.NewFetcher(), workspaceManager, nil, log, agent.Config{
		FetchTimeout: cfg.FetchTimeout,
		BuildTimeout: cfg.BuildTimeout,
		StopGrace:    cfg.StopGrace,
	})
	sampler := agent.NewSampler(dockerClient, nil, log, cfg.MetricsInterval)

	manager := agent.NewManager(agent.ManagerConfig{
		ConsoleWSURL:      cfg.ConsoleWSURL,
		AgentName:         cfg.AgentName,
		BackoffInitial:    cfg.BackoffInitial,
		BackoffMax:        cfg.BackoffMax,
		BackoffResetAfter: cfg.BackoffResetAfter,
	}, orchestrator, sampler, log)

	log.Info("agent starting", "name", cfg.AgentName, "console", cfg.ConsoleWSURL)
	manager.Run(ctx)
	log.Info("agent stopped")
}
