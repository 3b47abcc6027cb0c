// Package registry tracks connected agents and routes outbound commands.
package registry

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xXMohitXx/Dead-Simple-Infra/internal/protocol"
)

// Sender delivers a command frame to one connected agent.
type Sender interface {
	Send(msg protocol.Message) error
}

// Policy selects which of the connected agents receives a command.
// Implementations receive agent ids in a stable sorted order.
type Policy interface {
	Pick(agentIDs []string) string
}

// Arbitrary picks the first connected agent. This matches the reference
// behavior; it is not a load-aware choice.
type Arbitrary struct{}

// Pick returns the first id.
func (Arbitrary) Pick(agentIDs []string) string {
	if len(agentIDs) == 0 {
		return ""
	}
	return agentIDs[0]
}

// RoundRobin rotates through connected agents. Provided as an alternate
// policy; not the default.
type RoundRobin struct {
	mu   sync.Mutex
	next int
}

// Pick returns agents in rotation.
func (p *RoundRobin) Pick(agentIDs []string) string {
	if len(agentIDs) == 0 {
		return ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := agentIDs[p.next%len(agentIDs)]
	p.next++
	return id
}

type entry struct {
	sender    Sender
	connected time.Time
}

// Registry owns the set of live agent connections. All access goes
// through its mutex; there is no ambient shared state.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]entry
	policy Policy
	log    *slog.Logger
}

// New constructs a Registry with the given routing policy; nil selects
// Arbitrary.
func New(policy Policy, logger *slog.Logger) *Registry {
	if policy == nil {
		policy = Arbitrary{}
	}
	return &Registry{
		agents: make(map[string]entry),
		policy: policy,
		log:    logger,
	}
}

// Register adds a live connection and returns its agent id.
func (r *Registry) Register(sender Sender) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.agents[id] = entry{sender: sender, connected: time.Now().UTC()}
	r.mu.Unlock()
	r.log.Info("agent connected", "agent_id", id)
	return id
}

// Unregister drops a connection. Safe to call for unknown ids.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	_, ok := r.agents[id]
	delete(r.agents, id)
	r.mu.Unlock()
	if ok {
		r.log.Info("agent disconnected", "agent_id", id)
	}
}

// Count reports the number of connected agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Route delivers a command to one agent chosen by the routing policy.
// With no agent connected the command is dropped and Route returns
// false; commands are never queued for later delivery.
func (r *Registry) Route(msg protocol.Message) bool {
	r.mu.RLock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	r.mu.RUnlock()

	id := r.policy.Pick(ids)
	if id == "" {
		r.log.Warn("command dropped, no agents connected", "type", msg.Type, "app_id", msg.AppID)
		return false
	}

	r.mu.RLock()
	target, ok := r.agents[id]
	r.mu.RUnlock()
	if !ok {
		r.log.Warn("command dropped, agent vanished mid-route", "type", msg.Type, "agent_id", id)
		return false
	}
	if err := target.sender.Send(msg); err != nil {
		r.log.Error("command send failed", "type", msg.Type, "agent_id", id, "error", err)
		return false
	}
	return true
}
