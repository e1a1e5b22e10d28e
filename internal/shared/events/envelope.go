package events

import (
	"encoding/json"
	"time"
)

// Envelope is the canonical event shape published by strata modules.
// Consumers (the notification dispatcher among them) key routing off EventType
// and ordering off PartitionKey.
type Envelope struct {
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	SourceService  string          `json:"source_service"`
	OccurredAtUTC  time.Time       `json:"occurred_at_utc"`
	CorrelationID  string          `json:"correlation_id"`
	EntityType     string          `json:"entity_type"`
	EntityID       string          `json:"entity_id"`
	PartitionKey   string          `json:"partition_key"`
	PayloadVersion int             `json:"payload_version"`
	Payload        json.RawMessage `json:"payload"`
}
