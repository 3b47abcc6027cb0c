// Package httpapi exposes the console's REST, SSE and websocket surface.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xXMohitXx/Dead-Simple-Infra/internal/console/ingest"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/console/registry"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/console/service/apps"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/console/service/secrets"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/console/stream"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/repository"
)

const (
	rateWindowDefault  = time.Minute
	rateLimitWrite     = 60
	rateLimitRead      = 240
	healthCheckTimeout = 2 * time.Second
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux          *http.ServeMux
	logger       *slog.Logger
	apps         apps.Service
	secrets      secrets.Service
	registry     *registry.Registry
	hub          *stream.Hub
	ingest       *ingest.Processor
	agents       repository.AgentRepository
	upgrader     websocket.Upgrader
	limiter      RateLimiter
	dbHealth     func(context.Context) error
	logBuffer    int
	sseHeartbeat time.Duration

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
	connectedAgents    prometheus.Gauge
	agentEvents        *prometheus.CounterVec
}

// Config carries the router's tunables.
type Config struct {
	LogBuffer    int
	SSEHeartbeat time.Duration
}

// NewRouter assembles routes with dependencies.
func NewRouter(
	logger *slog.Logger,
	appSvc apps.Service,
	secretSvc secrets.Service,
	reg *registry.Registry,
	hub *stream.Hub,
	processor *ingest.Processor,
	agents repository.AgentRepository,
	limiter RateLimiter,
	dbHealth func(context.Context) error,
	cfg Config,
) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		apps:     appSvc,
		secrets:  secretSvc,
		registry: reg,
		hub:      hub,
		ingest:   processor,
		agents:   agents,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:      limiter,
		dbHealth:     dbHealth,
		logBuffer:    cfg.LogBuffer,
		sseHeartbeat: cfg.SSEHeartbeat,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	if r.logBuffer <= 0 {
		r.logBuffer = 100
	}
	if r.sseHeartbeat <= 0 {
		r.sseHeartbeat = 15 * time.Second
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to the underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/api/healthz", r.audit("healthz", r.handleHealthz))
	r.mux.HandleFunc("/api/readyz", r.audit("readyz", r.handleReadyz))
	r.mux.HandleFunc("/api/v1/apps", r.audit("apps", r.withRateLimit("apps", rateLimitWrite, rateWindowDefault, r.handleApps)))
	r.mux.HandleFunc("/api/v1/apps/", r.audit("apps_sub", r.withRateLimit("apps_sub", rateLimitRead, rateWindowDefault, r.handleAppSubroutes)))
	r.mux.HandleFunc("/api/v1/deployments/", r.audit("deployments", r.withRateLimit("deployments", rateLimitRead, rateWindowDefault, r.handleDeploymentsByApp)))
	r.mux.HandleFunc("/api/v1/agents", r.audit("agents", r.withRateLimit("agents", rateLimitRead, rateWindowDefault, r.handleAgents)))
	r.mux.HandleFunc("/api/v1/agents/stream", r.handleAgentStream)
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// handleReadyz reports whether the console can act on deploy requests,
// which requires at least one connected agent.
func (r *Router) handleReadyz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	count := r.registry.Count()
	payload := map[string]any{
		"status": "ready",
		"agents": count,
	}
	if count == 0 {
		payload["status"] = "no agents connected"
		writeJSON(w, http.StatusServiceUnavailable, payload)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (r *Router) handleApps(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodPost:
		var payload struct {
			Name     string `json:"name"`
			RepoURL  string `json:"repo_url"`
			RepoType string `json:"repo_type"`
		}
		if err := decodeJSON(req, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		app, err := r.apps.Create(req.Context(), payload.Name, payload.RepoURL, payload.RepoType)
		if err != nil {
			if errors.Is(err, apps.ErrInvalidInput) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, toAppResponse(*app))
	case http.MethodGet:
		list, err := r.apps.List(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out := make([]appResponse, 0, len(list))
		for _, app := range list {
			out = append(out, toAppResponse(app))
		}
		writeJSON(w, http.StatusOK, out)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleAppSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/api/v1/apps/")
	parts := strings.Split(trimmed, "/")
	appID := parts[0]
	if appID == "" {
		r.notFound(w)
		return
	}
	switch {
	case len(parts) == 1:
		r.handleApp(w, req, appID)
	case len(parts) == 2 && parts[1] == "deploy":
		r.handleDeploy(w, req, appID)
	case len(parts) == 2 && parts[1] == "stop":
		r.handleStop(w, req, appID)
	case len(parts) == 2 && parts[1] == "restart":
		r.handleRestart(w, req, appID)
	case len(parts) == 2 && parts[1] == "status":
		r.handleStatus(w, req, appID)
	case len(parts) == 2 && parts[1] == "deployments":
		r.handleDeployments(w, req, appID)
	case len(parts) == 2 && parts[1] == "metrics":
		r.handleMetrics(w, req, appID)
	case len(parts) == 2 && parts[1] == "secrets":
		r.handleSecrets(w, req, appID)
	case len(parts) == 3 && parts[1] == "secrets":
		r.handleSecret(w, req, appID, parts[2])
	case len(parts) == 3 && parts[1] == "logs" && parts[2] == "stream":
		r.handleLogStream(w, req, appID)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleApp(w http.ResponseWriter, req *http.Request, appID string) {
	switch req.Method {
	case http.MethodGet:
		app, err := r.apps.Get(req.Context(), appID)
		if err != nil {
			r.writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppResponse(*app))
	case http.MethodDelete:
		if err := r.apps.Delete(req.Context(), appID); err != nil {
			r.writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleDeploy(w http.ResponseWriter, req *http.Request, appID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	deployment, err := r.apps.Deploy(req.Context(), appID)
	if err != nil {
		if errors.Is(err, apps.ErrNoAgents) {
			writeError(w, http.StatusServiceUnavailable, "no agents connected")
			return
		}
		r.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toDeploymentResponse(*deployment))
}

func (r *Router) handleStop(w http.ResponseWriter, req *http.Request, appID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if err := r.apps.Stop(req.Context(), appID); err != nil {
		if errors.Is(err, apps.ErrNoAgents) {
			writeError(w, http.StatusServiceUnavailable, "no agents connected")
			return
		}
		r.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

func (r *Router) handleRestart(w http.ResponseWriter, req *http.Request, appID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if err := r.apps.Restart(req.Context(), appID); err != nil {
		if errors.Is(err, apps.ErrNoAgents) {
			writeError(w, http.StatusServiceUnavailable, "no agents connected")
			return
		}
		r.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "restarting"})
}

func (r *Router) handleStatus(w http.ResponseWriter, req *http.Request, appID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	view, err := r.apps.Status(req.Context(), appID)
	if err != nil {
		r.writeRepoError(w, err)
		return
	}
	payload := map[string]any{"app": toAppResponse(view.App)}
	if view.LatestDeployment != nil {
		payload["latest_deployment"] = toDeploymentResponse(*view.LatestDeployment)
	}
	if view.LatestSample != nil {
		payload["latest_metrics"] = toSampleResponse(*view.LatestSample)
	}
	writeJSON(w, http.StatusOK, payload)
}

func (r *Router) handleDeployments(w http.ResponseWriter, req *http.Request, appID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	deployments, err := r.apps.Deployments(req.Context(), appID, limit)
	if err != nil {
		r.writeRepoError(w, err)
		return
	}
	out := make([]deploymentResponse, 0, len(deployments))
	for _, dep := range deployments {
		out = append(out, toDeploymentResponse(dep))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleDeploymentsByApp serves the flat /api/v1/deployments/{app_id} form
// of the deployment history endpoint.
func (r *Router) handleDeploymentsByApp(w http.ResponseWriter, req *http.Request) {
	appID := strings.TrimPrefix(req.URL.Path, "/api/v1/deployments/")
	if appID == "" || strings.Contains(appID, "/") {
		r.notFound(w)
		return
	}
	r.handleDeployments(w, req, appID)
}

func (r *Router) handleMetrics(w http.ResponseWriter, req *http.Request, appID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 60
	}
	samples, err := r.apps.Metrics(req.Context(), appID, limit)
	if err != nil {
		r.writeRepoError(w, err)
		return
	}
	out := make([]sampleResponse, 0, len(samples))
	for _, sample := range samples {
		out = append(out, toSampleResponse(sample))
	}
	writeJSON(w, http.StatusOK, out)
}

func (r *Router) handleSecrets(w http.ResponseWriter, req *http.Request, appID string) {
	switch req.Method {
	case http.MethodPost:
		var payload struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		}
		if err := decodeJSON(req, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		secret, err := r.secrets.Create(req.Context(), appID, payload.Key, payload.Value)
		if err != nil {
			if errors.Is(err, secrets.ErrInvalidInput) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			r.writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toSecretResponse(*secret))
	case http.MethodGet:
		list, err := r.secrets.List(req.Context(), appID)
		if err != nil {
			r.writeRepoError(w, err)
			return
		}
		out := make([]secretResponse, 0, len(list))
		for _, secret := range list {
			out = append(out, toSecretResponse(secret))
		}
		writeJSON(w, http.StatusOK, out)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleSecret(w http.ResponseWriter, req *http.Request, appID, secretID string) {
	if req.Method != http.MethodDelete {
		r.methodNotAllowed(w)
		return
	}
	if err := r.secrets.Delete(req.Context(), appID, secretID); err != nil {
		r.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleLogStream serves an app's live event feed over SSE. The
// subscription lasts until the client disconnects.
func (r *Router) handleLogStream(w http.ResponseWriter, req *http.Request, appID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if _, err := r.apps.Get(req.Context(), appID); err != nil {
		r.writeRepoError(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := stream.NewChanSubscriber(r.logBuffer)
	r.hub.Subscribe(appID, sub)
	defer func() {
		r.hub.Unsubscribe(appID, sub)
		sub.Close()
	}()

	sse := stream.NewSSEClient(w, flusher, r.logger)
	ctx := req.Context()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		payload, open := sub.Next(r.sseHeartbeat)
		if !open {
			return
		}
		if payload == nil {
			if err := sse.Heartbeat(); err != nil {
				return
			}
			continue
		}
		if err := sse.Send(payload); err != nil {
			return
		}
	}
}

func (r *Router) handleAgents(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	agents, err := r.agents.ListAgents(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]agentResponse, 0, len(agents))
	for _, agent := range agents {
		out = append(out, toAgentResponse(agent))
	}
	writeJSON(w, http.StatusOK, out)
}

func (r *Router) writeRepoError(w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}

		r.recordRequestMetrics(req.Method, route, status, duration)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
