package application

import (
	"encoding/json"
	"time"

	"strata/internal/shared/events"
)

// Event types emitted by the poll service. Delivery to subscribers is
// fire-and-forget via the outbox relay; a failed delivery never blocks a poll
// or ballot operation.
const (
	EventPollCreated   = "poll.created"
	EventPollPublished = "poll.published"
	EventPollOpened    = "poll.opened"
	EventPollClosed    = "poll.closed"
	EventPollCancelled = "poll.cancelled"
	EventBallotCast    = "ballot.cast"
)

// NewGovernanceEnvelope builds the canonical envelope for poll-service events.
// Events are partitioned by poll so poll-scoped consumers observe them in
// order.
func NewGovernanceEnvelope(
	eventID string,
	eventType string,
	pollID string,
	occurredAt time.Time,
	data map[string]any,
) (events.Envelope, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return events.Envelope{}, err
	}
	return events.Envelope{
		EventID:        eventID,
		EventType:      eventType,
		SourceService:  "governance/poll-service",
		OccurredAtUTC:  occurredAt.UTC(),
		CorrelationID:  eventID,
		EntityType:     "poll",
		EntityID:       pollID,
		PartitionKey:   pollID,
		PayloadVersion: 1,
		Payload:        payload,
	}, nil
}
