package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"strata/contexts/governance/poll-service/adapters/memory"
	"strata/internal/shared/events"
)

type recordingPublisher struct {
	published []string
	failAfter int
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event events.Envelope) error {
	if p.failAfter > 0 && len(p.published) >= p.failAfter {
		return errors.New("bus unavailable")
	}
	p.published = append(p.published, topic+":"+event.EventID)
	return nil
}

func seedOutbox(t *testing.T, store *memory.Store, ids ...string) {
	t.Helper()
	base := time.Now().UTC()
	for i, id := range ids {
		err := store.AppendOutbox(context.Background(), events.Envelope{
			EventID:       id,
			EventType:     "poll.opened",
			EntityType:    "poll",
			EntityID:      "poll-1",
			PartitionKey:  "poll-1",
			OccurredAtUTC: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("seed outbox: %v", err)
		}
	}
}

func TestOutboxRelayPublishesAndMarks(t *testing.T) {
	store := memory.NewStore()
	publisher := &recordingPublisher{}
	seedOutbox(t, store, "evt-1", "evt-2")

	relay := OutboxRelay{Outbox: store, Publisher: publisher, BatchSize: 10}
	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once should succeed: %v", err)
	}

	if len(publisher.published) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(publisher.published))
	}
	if publisher.published[0] != "poll.opened:evt-1" {
		t.Fatalf("expected topic routed by event type, got %s", publisher.published[0])
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending rows after relay, got %d", len(pending))
	}
}

func TestOutboxRelayStopsOnPublishFailure(t *testing.T) {
	store := memory.NewStore()
	publisher := &recordingPublisher{failAfter: 1}
	seedOutbox(t, store, "evt-1", "evt-2", "evt-3")

	relay := OutboxRelay{Outbox: store, Publisher: publisher, BatchSize: 10}
	if err := relay.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected publish failure to surface")
	}

	// The failed and unprocessed rows stay pending for the next cycle.
	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 rows still pending, got %d", len(pending))
	}
}
