package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/xXMohitXx/Dead-Simple-Infra/internal/protocol"
)

// ErrNotConnected is returned when an event is sent without a live
// console session.
var ErrNotConnected = errors.New("agent: not connected to console")

// ManagerConfig carries the connection manager's tunables.
type ManagerConfig struct {
	ConsoleWSURL      string
	AgentName         string
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	BackoffResetAfter time.Duration
}

// Manager maintains the agent's persistent websocket session with the
// console. It reconnects indefinitely with exponential backoff and
// never drops a session on a malformed frame.
type Manager struct {
	cfg          ManagerConfig
	orchestrator *Orchestrator
	sampler      *Sampler
	logger       *slog.Logger
	backoff      *Backoff

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewManager wires a connection manager. The orchestrator's sender is
// pointed at the manager so events ride the live session.
func NewManager(cfg ManagerConfig, orchestrator *Orchestrator, sampler *Sampler, logger *slog.Logger) *Manager {
	if cfg.BackoffResetAfter <= 0 {
		cfg.BackoffResetAfter = 30 * time.Second
	}
	m := &Manager{
		cfg:          cfg,
		orchestrator: orchestrator,
		sampler:      sampler,
		logger:       logger,
		backoff:      NewBackoff(cfg.BackoffInitial, cfg.BackoffMax),
	}
	orchestrator.SetSender(m)
	if sampler != nil {
		sampler.SetSender(m)
	}
	return m
}

// Send delivers one event frame over the current session. Writes are
// serialized; gorilla connections do not allow concurrent writers.
func (m *Manager) Send(msg protocol.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return ErrNotConnected
	}
	return m.conn.WriteMessage(websocket.TextMessage, payload)
}

// Run connects and serves sessions until ctx is cancelled. Retries
// never give up; the delay doubles up to the cap and resets after a
// session that held long enough to count as stable.
func (m *Manager) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, m.cfg.ConsoleWSURL, nil)
		if err != nil {
			delay := m.backoff.Next()
			m.logger.Warn("console dial failed", "url", m.cfg.ConsoleWSURL, "retry_in", delay, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		start := time.Now()
		err = m.serve(ctx, conn)
		if time.Since(start) >= m.cfg.BackoffResetAfter {
			m.backoff.Reset()
		}
		if ctx.Err() != nil {
			return
		}
		delay := m.backoff.Next()
		m.logger.Warn("console session ended", "retry_in", delay, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// serve owns one session: register handshake, the sampler, and the
// command dispatch loop. Everything started here is a child of the
// session context and dies with it.
func (m *Manager) serve(ctx context.Context, conn *websocket.Conn) error {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()
		conn.Close()
	}()

	if err := m.Send(protocol.Message{Type: protocol.TypeRegister, AgentName: m.cfg.AgentName}); err != nil {
		return err
	}
	m.logger.Info("connected to console", "url", m.cfg.ConsoleWSURL, "agent_name", m.cfg.AgentName)

	if m.sampler != nil {
		go m.sampler.Run(sessionCtx, m.orchestrator.Tracked)
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		msg, err := protocol.Decode(raw)
		if err != nil {
			m.logger.Warn("malformed console frame", "error", err)
			continue
		}
		switch msg.Type {
		case protocol.TypeRegisterAck:
			m.logger.Info("registration acknowledged")
		case protocol.TypeDeploy:
			go m.orchestrator.HandleDeploy(sessionCtx, msg)
		case protocol.TypeStop:
			go m.orchestrator.HandleStop(sessionCtx, msg)
		case protocol.TypeRestart:
			go m.orchestrator.HandleRestart(sessionCtx, msg)
		default:
			m.logger.Warn("unknown console frame", "type", msg.Type)
		}
	}
}
