// Package protocol defines the JSON message frames exchanged between the
// console and its agents over a persistent websocket.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Message types sent by the console.
const (
	TypeRegisterAck = "register-ack"
	TypeDeploy      = "deploy"
	TypeStop        = "stop"
	TypeRestart     = "restart"
)

// Message types sent by agents.
const (
	TypeRegister           = "register"
	TypeLog                = "log"
	TypeStatusUpdate       = "status_update"
	TypeMetrics            = "metrics"
	TypeDeploymentComplete = "deployment_complete"
)

// Lifecycle statuses reported through status_update frames.
const (
	StatusPending  = "pending"
	StatusBuilding = "building"
	StatusRunning  = "running"
	StatusFailed   = "failed"
	StatusStopped  = "stopped"
)

// Message is the flat wire envelope. Type selects which fields are
// meaningful; everything else stays empty and is omitted on the wire.
type Message struct {
	Type string `json:"type"`

	// register
	AgentName string `json:"agent_name,omitempty"`

	// deploy / stop / restart / log / status_update / deployment_complete
	DeploymentID string `json:"deployment_id,omitempty"`
	AppID        string `json:"app_id,omitempty"`
	RepoURL      string `json:"repo_url,omitempty"`
	AppName      string `json:"app_name,omitempty"`

	// deploy: decrypted secrets injected as container environment
	Env map[string]string `json:"env,omitempty"`

	// status_update
	Status string `json:"status,omitempty"`

	// log
	Log       string `json:"log,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`

	// deployment_complete
	Port        *int   `json:"port,omitempty"`
	URL         string `json:"url,omitempty"`
	ContainerID string `json:"container_id,omitempty"`

	// metrics
	Data *MetricsData `json:"data,omitempty"`
}

// MetricsData carries one resource-usage sample for a running app.
// UptimeSeconds and RequestCount are always zero today: the runtime
// adapter does not supply them.
type MetricsData struct {
	AppID         string  `json:"app_id"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryMB      float64 `json:"memory_mb"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	RequestCount  int64   `json:"request_count"`
}

// Decode parses a raw websocket frame into a Message.
func Decode(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("decode protocol frame: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("protocol frame missing type")
	}
	return msg, nil
}

// NewLog builds a log frame with the current timestamp.
func NewLog(appID, deploymentID, line string) Message {
	return Message{
		Type:         TypeLog,
		AppID:        appID,
		DeploymentID: deploymentID,
		Log:          line,
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// NewStatusUpdate builds a status_update frame. deploymentID may be empty
// for post-deploy runtime status changes.
func NewStatusUpdate(appID, deploymentID, status string) Message {
	return Message{
		Type:         TypeStatusUpdate,
		AppID:        appID,
		DeploymentID: deploymentID,
		Status:       status,
	}
}

// ImageTag derives the image tag for a deployment. The deployment id
// prefix keeps tags unique per deployment without central coordination.
func ImageTag(appName, deploymentID string) string {
	return fmt.Sprintf("dsi-%s:%s", sanitizeName(appName), idPrefix(deploymentID))
}

// ContainerName derives a stable container name for an app.
func ContainerName(appName, appID string) string {
	return fmt.Sprintf("dsi-%s-%s", sanitizeName(appName), idPrefix(appID))
}

func idPrefix(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func sanitizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "app"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
