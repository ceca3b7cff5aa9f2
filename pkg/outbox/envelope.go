package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-core/pkg/db/models"
)

// CurrentVersion is the envelope version written when an event sets none.
const CurrentVersion = 1

// PayloadEnvelope is the JSON document stored in outbox_events.payload. EventID
// equals the row id, so consumers can dedupe on either.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

func encodeEnvelope(eventID uuid.UUID, version int, occurredAt time.Time, data any) (json.RawMessage, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode event data: %w", err)
	}
	if version == 0 {
		version = CurrentVersion
	}
	doc, err := json.Marshal(PayloadEnvelope{
		Version:    version,
		EventID:    eventID.String(),
		OccurredAt: occurredAt.UTC(),
		Data:       raw,
	})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return doc, nil
}

// DecodeEnvelope parses the envelope stored on an outbox row.
func DecodeEnvelope(row models.OutboxEvent) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode outbox envelope %s: %w", row.ID, err)
	}
	if env.Version == 0 {
		return PayloadEnvelope{}, fmt.Errorf("outbox envelope %s has no version", row.ID)
	}
	return env, nil
}
