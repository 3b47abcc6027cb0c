package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xXMohitXx/Dead-Simple-Infra/internal/console/ingest"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/console/registry"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/console/service/apps"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/console/service/secrets"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/console/stream"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/protocol"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/repository/memory"
)

type testEnv struct {
	server *httptest.Server
	store  *memory.Store
	router *Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	hub := stream.NewHub()
	reg := registry.New(nil, logger)
	processor := ingest.New(store, store, store, hub, logger)
	secretSvc := secrets.New(store, store, "test-master-key", logger)
	appSvc := apps.New(store, store, store, store, secretSvc, reg, logger)

	router := NewRouter(logger, appSvc, secretSvc, reg, hub, processor, store, nil, nil, Config{
		LogBuffer:    16,
		SSEHeartbeat: 50 * time.Millisecond,
	})
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		router.Close()
		hub.Close()
	})
	return &testEnv{server: server, store: store, router: router}
}

func (e *testEnv) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func (e *testEnv) createApp(t *testing.T, name string) string {
	t.Helper()
	resp := e.postJSON(t, "/api/v1/apps", map[string]string{
		"name":     name,
		"repo_url": "https://example.com/" + name + ".git",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create app status = %d", resp.StatusCode)
	}
	var created struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &created)
	return created.ID
}

// fakeAgent drives the agent side of the websocket protocol in tests.
type fakeAgent struct {
	conn *websocket.Conn
}

func dialAgent(t *testing.T, serverURL, name string) *fakeAgent {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "/api/v1/agents/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial agent websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	agent := &fakeAgent{conn: conn}
	agent.send(t, protocol.Message{Type: protocol.TypeRegister, AgentName: name})
	ack := agent.read(t)
	if ack.Type != protocol.TypeRegisterAck {
		t.Fatalf("handshake reply = %q, want register-ack", ack.Type)
	}
	return agent
}

func (a *fakeAgent) send(t *testing.T, msg protocol.Message) {
	t.Helper()
	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal agent frame: %v", err)
	}
	if err := a.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write agent frame: %v", err)
	}
}

func (a *fakeAgent) read(t *testing.T) protocol.Message {
	t.Helper()
	_ = a.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := a.conn.ReadMessage()
	if err != nil {
		t.Fatalf("read agent frame: %v", err)
	}
	msg, err := protocol.Decode(raw)
	if err != nil {
		t.Fatalf("decode agent frame: %v", err)
	}
	return msg
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/api/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Status string `json:"status"`
	}
	decodeBody(t, resp, &body)
	if body.Status != "ok" {
		t.Fatalf("status = %q, want ok", body.Status)
	}
}

func TestHealthzReportsDatabaseDown(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	hub := stream.NewHub()
	reg := registry.New(nil, logger)
	processor := ingest.New(store, store, store, hub, logger)
	secretSvc := secrets.New(store, store, "test-master-key", logger)
	appSvc := apps.New(store, store, store, store, secretSvc, reg, logger)
	dbHealth := func(context.Context) error { return fmt.Errorf("connection refused") }

	router := NewRouter(logger, appSvc, secretSvc, reg, hub, processor, store, nil, dbHealth, Config{})
	server := httptest.NewServer(router)
	defer func() {
		server.Close()
		router.Close()
		hub.Close()
	}()

	resp, err := http.Get(server.URL + "/api/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestReadyzTracksAgentSessions(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/api/readyz")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 with no agents", resp.StatusCode)
	}
	resp.Body.Close()

	agent := dialAgent(t, env.server.URL, "agent-1")

	resp = env.get(t, "/api/readyz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 with one agent", resp.StatusCode)
	}
	var body struct {
		Agents int `json:"agents"`
	}
	decodeBody(t, resp, &body)
	if body.Agents != 1 {
		t.Fatalf("agents = %d, want 1", body.Agents)
	}

	agent.conn.Close()
	waitFor(t, 2*time.Second, func() bool {
		resp := env.get(t, "/api/readyz")
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusServiceUnavailable
	})
}

func TestAppLifecycleEndpoints(t *testing.T) {
	env := newTestEnv(t)

	appID := env.createApp(t, "demo")

	resp := env.get(t, "/api/v1/apps")
	var list []appResponse
	decodeBody(t, resp, &list)
	if len(list) != 1 || list[0].ID != appID {
		t.Fatalf("list = %+v", list)
	}

	resp = env.get(t, "/api/v1/apps/"+appID)
	var got appResponse
	decodeBody(t, resp, &got)
	if got.Name != "demo" || got.Status != "idle" {
		t.Fatalf("app = %+v", got)
	}

	resp = env.get(t, "/api/v1/apps/missing")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodDelete, env.server.URL+"/api/v1/apps/"+appID, nil)
	if err != nil {
		t.Fatalf("build delete request: %v", err)
	}
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE app: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	resp = env.get(t, "/api/v1/apps/"+appID)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status after delete = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCreateAppValidation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/v1/apps", map[string]string{"name": "demo"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDeployWithoutAgents(t *testing.T) {
	env := newTestEnv(t)
	appID := env.createApp(t, "demo")

	resp := env.postJSON(t, "/api/v1/apps/"+appID+"/deploy", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDeployRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	appID := env.createApp(t, "demo")
	agent := dialAgent(t, env.server.URL, "agent-1")

	secretResp := env.postJSON(t, "/api/v1/apps/"+appID+"/secrets", map[string]string{"key": "API_KEY", "value": "hunter2"})
	if secretResp.StatusCode != http.StatusCreated {
		t.Fatalf("create secret status = %d", secretResp.StatusCode)
	}
	secretResp.Body.Close()

	resp := env.postJSON(t, "/api/v1/apps/"+appID+"/deploy", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("deploy status = %d, want 202", resp.StatusCode)
	}
	var dep deploymentResponse
	decodeBody(t, resp, &dep)
	if dep.Status != "pending" || dep.AppID != appID {
		t.Fatalf("deployment = %+v", dep)
	}

	cmd := agent.read(t)
	if cmd.Type != protocol.TypeDeploy || cmd.AppID != appID || cmd.DeploymentID != dep.ID {
		t.Fatalf("command = %+v", cmd)
	}
	if cmd.RepoURL == "" || cmd.AppName != "demo" {
		t.Fatalf("command payload = %+v", cmd)
	}
	if cmd.Env["API_KEY"] != "hunter2" {
		t.Fatalf("command env = %+v, want decrypted secret", cmd.Env)
	}

	// agent reports progress and completion
	agent.send(t, protocol.NewStatusUpdate(appID, dep.ID, protocol.StatusBuilding))
	port := 49160
	agent.send(t, protocol.Message{
		Type:         protocol.TypeDeploymentComplete,
		AppID:        appID,
		DeploymentID: dep.ID,
		Status:       protocol.StatusRunning,
		Port:         &port,
		URL:          "http://localhost:49160",
	})
	agent.send(t, protocol.Message{
		Type: protocol.TypeMetrics,
		Data: &protocol.MetricsData{AppID: appID, CPUPercent: 7.25, MemoryMB: 48},
	})

	waitFor(t, 2*time.Second, func() bool {
		resp := env.get(t, "/api/v1/apps/"+appID+"/status")
		var status struct {
			App              appResponse         `json:"app"`
			LatestDeployment *deploymentResponse `json:"latest_deployment"`
			LatestMetrics    *sampleResponse     `json:"latest_metrics"`
		}
		decodeBody(t, resp, &status)
		return status.App.Status == "running" &&
			status.App.Port != nil && *status.App.Port == port &&
			status.LatestDeployment != nil && status.LatestDeployment.Status == "running" &&
			status.LatestMetrics != nil && status.LatestMetrics.CPUPercent == 7.25
	})

	// deployment history is reachable under both the nested and flat paths
	for _, path := range []string{
		"/api/v1/apps/" + appID + "/deployments",
		"/api/v1/deployments/" + appID,
	} {
		resp := env.get(t, path)
		var history []deploymentResponse
		decodeBody(t, resp, &history)
		if len(history) != 1 || history[0].ID != dep.ID || history[0].Status != "running" {
			t.Fatalf("history from %s = %+v", path, history)
		}
	}
}

func TestLogStreamDeliversAgentLogs(t *testing.T) {
	env := newTestEnv(t)
	appID := env.createApp(t, "demo")
	agent := dialAgent(t, env.server.URL, "agent-1")

	resp := env.get(t, "/api/v1/apps/"+appID+"/logs/stream")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stream status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}

	// the subscription registers asynchronously with the hub
	waitFor(t, 2*time.Second, func() bool {
		return env.router.hub.SubscriberCount(appID) == 1
	})

	agent.send(t, protocol.NewLog(appID, "dep-1", "Cloning repository"))

	reader := bufio.NewReader(resp.Body)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("no data frame before deadline")
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event protocol.Message
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if event.Log != "Cloning repository" || event.AppID != appID {
			t.Fatalf("event = %+v", event)
		}
		return
	}
}

func TestSecretsEndpoints(t *testing.T) {
	env := newTestEnv(t)
	appID := env.createApp(t, "demo")

	resp := env.postJSON(t, "/api/v1/apps/"+appID+"/secrets", map[string]string{
		"key":   "API_KEY",
		"value": "super-secret",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create secret status = %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if bytes.Contains(raw, []byte("super-secret")) {
		t.Fatal("secret value leaked in create response")
	}
	var created secretResponse
	if err := json.Unmarshal(raw, &created); err != nil {
		t.Fatalf("decode secret: %v", err)
	}

	resp = env.get(t, "/api/v1/apps/"+appID+"/secrets")
	var list []secretResponse
	decodeBody(t, resp, &list)
	if len(list) != 1 || list[0].Key != "API_KEY" {
		t.Fatalf("list = %+v", list)
	}

	req, err := http.NewRequest(http.MethodDelete, env.server.URL+"/api/v1/apps/"+appID+"/secrets/"+created.ID, nil)
	if err != nil {
		t.Fatalf("build delete request: %v", err)
	}
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE secret: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
}

func TestAgentsEndpointListsRegistrations(t *testing.T) {
	env := newTestEnv(t)
	dialAgent(t, env.server.URL, "edge-agent")

	waitFor(t, 2*time.Second, func() bool {
		resp := env.get(t, "/api/v1/agents")
		var list []agentResponse
		decodeBody(t, resp, &list)
		return len(list) == 1 && list[0].Name == "edge-agent" && list[0].Status == "online"
	})
}
