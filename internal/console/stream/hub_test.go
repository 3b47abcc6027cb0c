package stream

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type recordingSubscriber struct {
	mu       sync.Mutex
	payloads []string
	closed   bool
}

func (r *recordingSubscriber) Send(payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, string(payload))
	return nil
}

func (r *recordingSubscriber) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *recordingSubscriber) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.payloads...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached before deadline")
}

func TestPublishPreservesPerAppOrder(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	sub := &recordingSubscriber{}
	hub.Subscribe("app-1", sub)
	waitFor(t, func() bool { return hub.SubscriberCount("app-1") == 1 })

	const n = 50
	for i := 0; i < n; i++ {
		hub.Publish("app-1", []byte(fmt.Sprintf("line-%03d", i)))
	}

	waitFor(t, func() bool { return len(sub.snapshot()) == n })
	got := sub.snapshot()
	for i, line := range got {
		if line != fmt.Sprintf("line-%03d", i) {
			t.Fatalf("order violated at index %d: %s", i, line)
		}
	}
}

func TestEventsWithoutSubscribersAreDropped(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	// Must not block or panic with nobody listening.
	hub.Publish("ghost-app", []byte("nobody home"))

	sub := &recordingSubscriber{}
	hub.Subscribe("ghost-app", sub)
	waitFor(t, func() bool { return hub.SubscriberCount("ghost-app") == 1 })
	hub.Publish("ghost-app", []byte("after subscribe"))

	waitFor(t, func() bool { return len(sub.snapshot()) == 1 })
	if got := sub.snapshot()[0]; got != "after subscribe" {
		t.Fatalf("expected only post-subscribe event, got %q", got)
	}
}

func TestRemainingSubscriberSurvivesUnsubscribe(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	first := &recordingSubscriber{}
	second := &recordingSubscriber{}
	hub.Subscribe("app-1", first)
	hub.Subscribe("app-1", second)
	waitFor(t, func() bool { return hub.SubscriberCount("app-1") == 2 })

	hub.Publish("app-1", []byte("both"))
	waitFor(t, func() bool { return len(first.snapshot()) == 1 && len(second.snapshot()) == 1 })

	hub.Unsubscribe("app-1", first)
	waitFor(t, func() bool { return hub.SubscriberCount("app-1") == 1 })

	hub.Publish("app-1", []byte("second only"))
	waitFor(t, func() bool { return len(second.snapshot()) == 2 })

	if len(first.snapshot()) != 1 {
		t.Fatalf("unsubscribed client kept receiving: %v", first.snapshot())
	}
	if got := second.snapshot()[1]; got != "second only" {
		t.Fatalf("remaining subscriber missed event: %v", second.snapshot())
	}
}

func TestSubscribersAreIsolatedPerApp(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	a := &recordingSubscriber{}
	b := &recordingSubscriber{}
	hub.Subscribe("app-a", a)
	hub.Subscribe("app-b", b)
	waitFor(t, func() bool { return hub.SubscriberCount("app-a") == 1 && hub.SubscriberCount("app-b") == 1 })

	hub.Publish("app-a", []byte("for a"))
	waitFor(t, func() bool { return len(a.snapshot()) == 1 })

	if len(b.snapshot()) != 0 {
		t.Fatalf("app-b subscriber received app-a event: %v", b.snapshot())
	}
}

func TestChanSubscriberDropsNewestWhenFull(t *testing.T) {
	sub := NewChanSubscriber(2)
	defer sub.Close()

	for i := 0; i < 5; i++ {
		if err := sub.Send([]byte(fmt.Sprintf("line-%d", i))); err != nil {
			t.Fatalf("Send returned error: %v", err)
		}
	}

	payload, ok := sub.Next(time.Second)
	if !ok || string(payload) != "line-0" {
		t.Fatalf("expected oldest buffered line, got %q ok=%v", payload, ok)
	}
	payload, ok = sub.Next(time.Second)
	if !ok || string(payload) != "line-1" {
		t.Fatalf("expected second buffered line, got %q ok=%v", payload, ok)
	}
}

func TestChanSubscriberHeartbeatAndClose(t *testing.T) {
	sub := NewChanSubscriber(1)

	payload, ok := sub.Next(10 * time.Millisecond)
	if payload != nil || !ok {
		t.Fatalf("expected heartbeat tick, got payload=%q ok=%v", payload, ok)
	}

	sub.Close()
	if _, ok := sub.Next(time.Second); ok {
		t.Fatalf("expected closed subscriber to report not ok")
	}
}
