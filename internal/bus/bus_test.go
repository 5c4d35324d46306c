package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	b.Emit(SyncStarted, nil)

	select {
	case evt := <-ch:
		if evt.Kind != SyncStarted {
			t.Errorf("got kind %q, want %s", evt.Kind, SyncStarted)
		}
		if evt.Timestamp.IsZero() {
			t.Error("Emit did not stamp the event")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("outbox.", 10)
	defer unsub()

	b.Emit(ConnectivityChanged, true)
	b.Emit(OutboxEnqueued, nil)

	select {
	case evt := <-ch:
		if evt.Kind != OutboxEnqueued {
			t.Errorf("got kind %q, want %s", evt.Kind, OutboxEnqueued)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("status.", 10)
	if b.Subscribers() != 1 {
		t.Fatalf("subscribers = %d, want 1", b.Subscribers())
	}
	unsub()
	if b.Subscribers() != 0 {
		t.Errorf("subscribers after unsub = %d, want 0", b.Subscribers())
	}

	b.Emit(StatusChanged, nil)

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	b.Publish(Event{Kind: "test.one"})
	// Buffer is full; this one is dropped instead of blocking.
	b.Publish(Event{Kind: "test.two"})

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
	select {
	case evt := <-ch:
		t.Errorf("dropped event was delivered: %v", evt)
	default:
	}
}
