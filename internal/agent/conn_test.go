package agent

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xXMohitXx/Dead-Simple-Infra/internal/protocol"
)

// consoleStub plays the console side of the protocol for one session.
type consoleStub struct {
	server   *httptest.Server
	upgrader websocket.Upgrader
	frames   chan protocol.Message
	conns    chan *websocket.Conn
}

func newConsoleStub(t *testing.T) *consoleStub {
	t.Helper()
	stub := &consoleStub{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		frames:   make(chan protocol.Message, 64),
		conns:    make(chan *websocket.Conn, 4),
	}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := stub.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		stub.conns <- conn
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := protocol.Decode(raw)
			if err != nil {
				continue
			}
			stub.frames <- msg
		}
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *consoleStub) wsURL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

func (s *consoleStub) nextFrame(t *testing.T) protocol.Message {
	t.Helper()
	select {
	case msg := <-s.frames:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no frame from agent before deadline")
		return protocol.Message{}
	}
}

func (s *consoleStub) sendCommand(t *testing.T, conn *websocket.Conn, msg protocol.Message) {
	t.Helper()
	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal command: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write command: %v", err)
	}
}

func TestManagerRegistersAndExecutesDeploy(t *testing.T) {
	stub := newConsoleStub(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	runtime := &fakeRuntime{hostPort: 49400}
	o := NewOrchestrator(runtime, &fakeFetcher{}, &fakeWorkspace{}, nil, logger, Config{})
	m := NewManager(ManagerConfig{
		ConsoleWSURL:   stub.wsURL(),
		AgentName:      "test-agent",
		BackoffInitial: 10 * time.Millisecond,
		BackoffMax:     50 * time.Millisecond,
	}, o, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	register := stub.nextFrame(t)
	if register.Type != protocol.TypeRegister || register.AgentName != "test-agent" {
		t.Fatalf("handshake frame = %+v", register)
	}

	conn := <-stub.conns
	stub.sendCommand(t, conn, protocol.Message{Type: protocol.TypeRegisterAck})
	stub.sendCommand(t, conn, deployCommand())

	sawRunning := false
	sawComplete := false
	deadline := time.After(2 * time.Second)
	for !sawRunning || !sawComplete {
		select {
		case msg := <-stub.frames:
			if msg.Type == protocol.TypeStatusUpdate && msg.Status == protocol.StatusRunning {
				sawRunning = true
			}
			if msg.Type == protocol.TypeDeploymentComplete {
				sawComplete = true
				if msg.Port == nil || *msg.Port != 49400 {
					t.Fatalf("port = %v, want 49400", msg.Port)
				}
			}
		case <-deadline:
			t.Fatalf("deploy events incomplete: running=%v complete=%v", sawRunning, sawComplete)
		}
	}
}

func TestManagerReconnectsAfterDrop(t *testing.T) {
	stub := newConsoleStub(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	o := NewOrchestrator(&fakeRuntime{}, &fakeFetcher{}, &fakeWorkspace{}, nil, logger, Config{})
	m := NewManager(ManagerConfig{
		ConsoleWSURL:   stub.wsURL(),
		AgentName:      "test-agent",
		BackoffInitial: 10 * time.Millisecond,
		BackoffMax:     50 * time.Millisecond,
	}, o, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	first := stub.nextFrame(t)
	if first.Type != protocol.TypeRegister {
		t.Fatalf("frame = %+v, want register", first)
	}

	conn := <-stub.conns
	conn.Close()

	// a fresh session re-registers on its own
	second := stub.nextFrame(t)
	if second.Type != protocol.TypeRegister {
		t.Fatalf("frame after drop = %+v, want register", second)
	}
}
