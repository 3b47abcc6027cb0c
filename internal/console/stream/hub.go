// Package stream fans inbound log events out to live subscribers.
package stream

import "sync"

// Subscriber abstracts a streaming log consumer.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub manages log subscriptions by application ID. All mutation flows
// through a single goroutine; events for an app with no subscribers are
// dropped (at-most-once, no replay).
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	done      chan struct{}
}

type message struct {
	appID   string
	payload []byte
}

type subscription struct {
	appID  string
	client Subscriber
}

// NewHub creates an initialized Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for _, clients := range h.clients {
				for c := range clients {
					c.Close()
				}
			}
			h.clients = make(map[string]map[Subscriber]struct{})
			h.mu.Unlock()
			return
		case sub := <-h.register:
			h.mu.Lock()
			if _, ok := h.clients[sub.appID]; !ok {
				h.clients[sub.appID] = make(map[Subscriber]struct{})
			}
			h.clients[sub.appID][sub.client] = struct{}{}
			h.mu.Unlock()
		case sub := <-h.unreg:
			h.mu.Lock()
			if clients, ok := h.clients[sub.appID]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.clients, sub.appID)
				}
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			if clients, ok := h.clients[msg.appID]; ok {
				for c := range clients {
					if err := c.Send(msg.payload); err != nil {
						c.Close()
						delete(clients, c)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.appID)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Subscribe adds a client to an app's log stream. Multiple simultaneous
// subscriptions per app are valid.
func (h *Hub) Subscribe(appID string, client Subscriber) {
	select {
	case h.register <- subscription{appID: appID, client: client}:
	case <-h.done:
	}
}

// Unsubscribe removes exactly one client. Callers must invoke it on
// consumer disconnect to avoid leaking registrations.
func (h *Hub) Unsubscribe(appID string, client Subscriber) {
	select {
	case h.unreg <- subscription{appID: appID, client: client}:
	case <-h.done:
	}
}

// Publish delivers payload to every current subscriber of appID, in the
// order Publish was called.
func (h *Hub) Publish(appID string, payload []byte) {
	select {
	case h.broadcast <- message{appID: appID, payload: payload}:
	case <-h.done:
	}
}

// SubscriberCount reports the number of live subscriptions for an app.
func (h *Hub) SubscriberCount(appID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[appID])
}

// Close shuts the hub down and closes every subscriber.
func (h *Hub) Close() {
	close(h.done)
}
