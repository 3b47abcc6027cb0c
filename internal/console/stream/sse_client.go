package stream

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// SSEClient streams log events over an HTTP response writer using
// `data: <json>` framing.
type SSEClient struct {
	mu      sync.Mutex
	writer  io.Writer
	flusher http.Flusher
	log     *slog.Logger
	closed  bool
}

// NewSSEClient builds an SSE client instance.
func NewSSEClient(writer io.Writer, flusher http.Flusher, logger *slog.Logger) *SSEClient {
	return &SSEClient{writer: writer, flusher: flusher, log: logger}
}

// Send emits a data event to the SSE stream.
func (c *SSEClient) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.EOF
	}
	if _, err := fmt.Fprintf(c.writer, "data: %s\n\n", payload); err != nil {
		c.closed = true
		c.log.Warn("sse send failed", "error", err)
		return err
	}
	c.flusher.Flush()
	return nil
}

// Heartbeat emits a comment frame to keep the connection alive.
func (c *SSEClient) Heartbeat() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.EOF
	}
	if _, err := fmt.Fprint(c.writer, ": ping\n\n"); err != nil {
		c.closed = true
		return err
	}
	c.flusher.Flush()
	return nil
}

// Close marks the stream as closed.
func (c *SSEClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// ChanSubscriber buffers events in a bounded channel for pull-side
// consumers. When the buffer is full the newest event is dropped
// rather than blocking the hub.
type ChanSubscriber struct {
	ch     chan []byte
	once   sync.Once
	closed chan struct{}
}

// NewChanSubscriber creates a subscriber with the given buffer depth.
func NewChanSubscriber(depth int) *ChanSubscriber {
	if depth <= 0 {
		depth = 100
	}
	return &ChanSubscriber{ch: make(chan []byte, depth), closed: make(chan struct{})}
}

// Send enqueues payload, dropping it when the buffer is full.
func (c *ChanSubscriber) Send(payload []byte) error {
	select {
	case <-c.closed:
		return io.EOF
	default:
	}
	select {
	case c.ch <- payload:
		return nil
	default:
		return nil // consumer stalled, drop newest
	}
}

// Close releases the subscriber; pending events stay readable.
func (c *ChanSubscriber) Close() {
	c.once.Do(func() { close(c.closed) })
}

// Next blocks for the next event, a heartbeat tick, or closure.
func (c *ChanSubscriber) Next(heartbeat time.Duration) ([]byte, bool) {
	timer := time.NewTimer(heartbeat)
	defer timer.Stop()
	select {
	case payload := <-c.ch:
		return payload, true
	case <-timer.C:
		return nil, true
	case <-c.closed:
		return nil, false
	}
}

// Events exposes the delivery channel.
func (c *ChanSubscriber) Events() <-chan []byte {
	return c.ch
}
