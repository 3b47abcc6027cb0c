package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/xXMohitXx/Dead-Simple-Infra/internal/domain"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/protocol"
)

// agentConn wraps one agent websocket. Send is safe for concurrent use;
// command routing and the register ack come from different goroutines.
type agentConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
	log  *slog.Logger
}

func newAgentConn(conn *websocket.Conn, logger *slog.Logger) *agentConn {
	return &agentConn{conn: conn, log: logger}
}

// Send writes one command frame to the agent.
func (c *agentConn) Send(msg protocol.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.log.Warn("agent websocket send failed", "error", err)
		_ = c.conn.Close()
		return err
	}
	return nil
}

// handleAgentStream owns one agent's websocket session: the register
// handshake, the inbound event loop, and teardown bookkeeping.
func (r *Router) handleAgentStream(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("agent websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	client := newAgentConn(conn, r.logger)
	ctx := req.Context()

	var agentID, agentName string
	defer func() {
		if agentID == "" {
			return
		}
		r.registry.Unregister(agentID)
		r.setConnectedAgents(r.registry.Count())
		if err := r.agents.MarkAgentOffline(ctx, agentID, time.Now().UTC()); err != nil {
			r.logger.Warn("mark agent offline", "agent_id", agentID, "error", err)
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.Decode(raw)
		if err != nil {
			r.logger.Warn("malformed agent frame", "error", err)
			continue
		}
		r.recordAgentEvent(msg.Type)

		if msg.Type == protocol.TypeRegister {
			if agentID != "" {
				// duplicate register on a live session, refresh last_seen only
				r.touchAgent(ctx, agentID, agentName)
				continue
			}
			agentID = r.registry.Register(client)
			agentName = msg.AgentName
			r.setConnectedAgents(r.registry.Count())
			now := time.Now().UTC()
			if err := r.agents.UpsertAgent(ctx, &domain.Agent{
				ID:           agentID,
				Name:         agentName,
				Status:       domain.AgentStatusOnline,
				RegisteredAt: now,
				LastSeen:     now,
			}); err != nil {
				r.logger.Warn("persist agent registration", "agent_id", agentID, "error", err)
			}
			if err := client.Send(protocol.Message{Type: protocol.TypeRegisterAck}); err != nil {
				return
			}
			continue
		}
		if agentID == "" {
			r.logger.Warn("event before register dropped", "type", msg.Type)
			continue
		}
		r.ingest.Process(ctx, msg)
	}
}

func (r *Router) touchAgent(ctx context.Context, agentID, agentName string) {
	now := time.Now().UTC()
	if err := r.agents.UpsertAgent(ctx, &domain.Agent{
		ID:           agentID,
		Name:         agentName,
		Status:       domain.AgentStatusOnline,
		RegisteredAt: now,
		LastSeen:     now,
	}); err != nil {
		r.logger.Warn("refresh agent registration", "agent_id", agentID, "error", err)
	}
}
