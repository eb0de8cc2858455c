package events

import (
	"errors"
	"testing"
	"time"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestSubscribeReceivesOnlyItsType(t *testing.T) {
	bus := NewEventBus()
	generated := make(chan Event, 4)
	all := make(chan Event, 4)
	bus.Subscribe(EventSignalGenerated, func(e Event) { generated <- e })
	bus.SubscribeAll(func(e Event) { all <- e })

	bus.PublishPriceUpdate("BTCUSDT", 95000)
	bus.PublishSignalGenerated("sig-1", "BTCUSDT", "1h", "buy", 72, 95010.5)

	ev := receive(t, generated)
	if ev.Type != EventSignalGenerated {
		t.Fatalf("expected %s, got %s", EventSignalGenerated, ev.Type)
	}
	if ev.Data["signal_id"] != "sig-1" || ev.Data["confidence"] != 72 {
		t.Errorf("unexpected payload: %v", ev.Data)
	}
	if ev.Timestamp.IsZero() {
		t.Error("timestamp should be set on publish")
	}

	seen := map[EventType]bool{}
	seen[receive(t, all).Type] = true
	seen[receive(t, all).Type] = true
	if !seen[EventPriceUpdate] || !seen[EventSignalGenerated] {
		t.Errorf("all-subscriber missed events: %v", seen)
	}

	select {
	case ev := <-generated:
		t.Errorf("unexpected extra event %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishKeepsExplicitTimestamp(t *testing.T) {
	bus := NewEventBus()
	ch := make(chan Event, 1)
	bus.SubscribeAll(func(e Event) { ch <- e })

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	bus.Publish(Event{Type: EventScanCompleted, Timestamp: at})

	if got := receive(t, ch).Timestamp; !got.Equal(at) {
		t.Errorf("timestamp overwritten: %v", got)
	}
}

func TestPublishErrorPayload(t *testing.T) {
	bus := NewEventBus()
	ch := make(chan Event, 1)
	bus.Subscribe(EventError, func(e Event) { ch <- e })

	bus.PublishError("scanner", "scan failed", errors.New("boom"))
	ev := receive(t, ch)
	if ev.Data["error"] != "boom" || ev.Data["source"] != "scanner" {
		t.Errorf("unexpected payload: %v", ev.Data)
	}
}
