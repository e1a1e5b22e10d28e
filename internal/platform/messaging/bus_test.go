package messaging

import (
	"context"
	"testing"
	"time"

	"strata/internal/shared/events"
)

func TestBusDeliversToSubscriber(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBus(nil)
	received := make(chan events.Envelope, 1)
	err := bus.Subscribe(ctx, "poll.opened", func(_ context.Context, event events.Envelope) error {
		received <- event
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	event := events.Envelope{EventID: "evt-1", EventType: "poll.opened"}
	if err := bus.Publish(ctx, "poll.opened", event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-received:
		if got.EventID != "evt-1" {
			t.Fatalf("expected evt-1, got %s", got.EventID)
		}
	case <-time.After(time.Second):
		t.Fatalf("event was not delivered")
	}
}

func TestBusIgnoresOtherTopics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBus(nil)
	received := make(chan events.Envelope, 1)
	err := bus.Subscribe(ctx, "poll.closed", func(_ context.Context, event events.Envelope) error {
		received <- event
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := bus.Publish(ctx, "poll.opened", events.Envelope{EventID: "evt-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-received:
		t.Fatalf("unexpected delivery: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}
