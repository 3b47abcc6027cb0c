package config

import "time"

// AgentConfig holds runtime configuration for the agent process.
type AgentConfig struct {
	ConsoleWSURL      string
	AgentName         string
	Workdir           string
	DockerHost        string
	FetchTimeout      time.Duration
	BuildTimeout      time.Duration
	StopGrace         time.Duration
	MetricsInterval   time.Duration
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	BackoffResetAfter time.Duration
}

// LoadAgentConfig constructs an AgentConfig from environment variables.
func LoadAgentConfig() AgentConfig {
	return AgentConfig{
		ConsoleWSURL:      GetString("CONSOLE_WS_URL", "ws://localhost:8001/api/v1/agents/stream"),
		AgentName:         GetString("AGENT_NAME", "local-agent"),
		Workdir:           GetString("AGENT_WORKDIR", "/tmp/dsi-agent-workspace"),
		DockerHost:        GetString("DOCKER_HOST", ""),
		FetchTimeout:      GetSeconds("FETCH_TIMEOUT_SECONDS", 300*time.Second),
		BuildTimeout:      GetSeconds("BUILD_TIMEOUT_SECONDS", 0),
		StopGrace:         GetSeconds("STOP_GRACE_SECONDS", 10*time.Second),
		MetricsInterval:   GetSeconds("METRICS_INTERVAL_SECONDS", 10*time.Second),
		BackoffInitial:    GetSeconds("BACKOFF_INITIAL_SECONDS", 2*time.Second),
		BackoffMax:        GetSeconds("BACKOFF_MAX_SECONDS", 60*time.Second),
		BackoffResetAfter: GetSeconds("BACKOFF_RESET_AFTER_SECONDS", 30*time.Second),
	}
}
