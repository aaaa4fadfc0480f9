package sse

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func recvTimeout(t *testing.T, ch chan []byte, d time.Duration) []byte {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return msg
	case <-time.After(d):
		t.Fatal("no message before timeout")
		return nil
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()

	ch := b.Subscribe()
	if n := b.ClientCount(); n != 1 {
		t.Fatalf("ClientCount = %d, want 1", n)
	}

	b.Unsubscribe(ch)
	if n := b.ClientCount(); n != 0 {
		t.Fatalf("ClientCount = %d, want 0", n)
	}
	if _, ok := <-ch; ok {
		t.Error("channel not closed after unsubscribe")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()

	ch := b.Subscribe()
	b.Publish(Event{Type: "test.event", Data: map[string]string{"k": "v"}})

	msg := string(recvTimeout(t, ch, time.Second))
	if !strings.Contains(msg, "event: test.event\n") {
		t.Errorf("missing event line: %q", msg)
	}
	if !strings.Contains(msg, `data: {"k":"v"}`) {
		t.Errorf("missing data line: %q", msg)
	}
	if !strings.HasSuffix(msg, "\n\n") {
		t.Errorf("frame not terminated: %q", msg)
	}
}

func TestCacheEventTranslation(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()

	ch := b.Subscribe()
	b.PublishCacheEvent("cached", "aaaaaaaaaaa")

	first := string(recvTimeout(t, ch, time.Second))
	if !strings.Contains(first, "event: record.cached\n") {
		t.Errorf("first frame = %q", first)
	}
	if !strings.Contains(first, `"id":"aaaaaaaaaaa"`) {
		t.Errorf("id missing: %q", first)
	}

	// The first record event also carries an index.updated companion.
	second := string(recvTimeout(t, ch, time.Second))
	if !strings.Contains(second, "event: index.updated\n") {
		t.Errorf("second frame = %q", second)
	}
}

func TestIndexUpdateThrottle(t *testing.T) {
	b := NewBroker(10 * time.Second)
	defer b.Close()

	ch := b.Subscribe()
	for i := 0; i < 5; i++ {
		b.PublishCacheEvent("evicted", "aaaaaaaaaaa")
	}

	var record, index int
	deadline := time.After(time.Second)
loop:
	for {
		select {
		case msg := <-ch:
			switch {
			case strings.Contains(string(msg), "event: record.evicted\n"):
				record++
				if record == 5 {
					break loop
				}
			case strings.Contains(string(msg), "event: index.updated\n"):
				index++
			}
		case <-deadline:
			t.Fatalf("got %d record events before timeout", record)
		}
	}
	if index != 1 {
		t.Errorf("index.updated broadcast %d times during burst, want 1", index)
	}
}

func TestUnknownCacheEventIgnored(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()

	ch := b.Subscribe()
	b.PublishCacheEvent("bogus", "x")
	b.Publish(Event{Type: "marker", Data: map[string]string{}})

	msg := string(recvTimeout(t, ch, time.Second))
	if !strings.Contains(msg, "event: marker\n") {
		t.Errorf("unexpected frame before marker: %q", msg)
	}
}

func TestServeHTTPStreamsEvents(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()

	req := httptest.NewRequest("GET", "/api/events", nil)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.ServeHTTP(rec, req)
	}()

	deadline := time.Now().Add(time.Second)
	for b.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	b.Publish(Event{Type: "ping", Data: map[string]string{}})
	b.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not exit after close")
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if body := rec.Body.String(); !strings.Contains(body, "event: ping\n") {
		t.Errorf("body = %q", body)
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()

	ch := b.Subscribe()
	// Overfill the per-client buffer; the loop must not block.
	for i := 0; i < 2*cap(ch); i++ {
		b.Publish(Event{Type: "flood", Data: map[string]string{}})
	}

	done := make(chan int, 1)
	go func() { done <- b.ClientCount() }()
	select {
	case n := <-done:
		if n != 1 {
			t.Errorf("ClientCount = %d, want 1", n)
		}
	case <-time.After(time.Second):
		t.Fatal("event loop blocked by slow client")
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	b := NewBroker(time.Second)
	ch := b.Subscribe()
	b.Close()

	deadline := time.After(time.Second)
drain:
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				break drain
			}
		case <-deadline:
			t.Fatal("subscriber channel not closed")
		}
	}

	// Post-close operations are harmless no-ops.
	if got := b.Subscribe(); got == nil {
		t.Fatal("Subscribe returned nil")
	} else if _, ok := <-got; ok {
		t.Error("post-close Subscribe returned open channel")
	}
	b.Publish(Event{Type: "x", Data: nil})
	b.PublishCacheEvent("cached", "x")
	if n := b.ClientCount(); n != 0 {
		t.Errorf("ClientCount after close = %d", n)
	}
}
