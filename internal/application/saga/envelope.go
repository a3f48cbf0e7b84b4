package saga

import (
	"encoding/json"
	"fmt"
	"time"

	"fulfillment/internal/application/entity"

	"github.com/gofrs/uuid"
)

// Envelope is the immutable unit that travels through the broker. EventID is
// the consumer-side dedup token; SagaID threads every event of one business
// transaction; CausationID points at the event the emitting handler reacted
// to, when there is one.
type Envelope struct {
	EventID       uuid.UUID       `json:"eventId"`
	SchemaVersion int             `json:"schemaVersion"`
	Timestamp     time.Time       `json:"timestamp"`
	AggregateID   uuid.UUID       `json:"aggregateId"`
	SagaID        uuid.UUID       `json:"sagaId"`
	CausationID   uuid.NullUUID   `json:"causationId,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

func NewEnvelope(aggregateID, sagaID uuid.UUID, causationID uuid.NullUUID, payload any) (*Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	eventID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("new event id: %w", err)
	}

	return &Envelope{
		EventID:       eventID,
		SchemaVersion: SchemaVersion,
		Timestamp:     time.Now().UTC(),
		AggregateID:   aggregateID,
		SagaID:        sagaID,
		CausationID:   causationID,
		Payload:       body,
	}, nil
}

func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventID == uuid.Nil {
		return nil, fmt.Errorf("envelope without eventId")
	}
	return &env, nil
}

// Outbox wraps the envelope into the record persisted alongside the state
// change. The record inherits the envelope's EventID, so broker dedup and
// outbox identity are the same value.
func (e *Envelope) Outbox(agg entity.OutboxAggregate, eventType string) (*entity.OutboxEvent, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	return &entity.OutboxEvent{
		EventID:       e.EventID,
		AggregateType: agg,
		AggregateID:   e.AggregateID,
		EventType:     eventType,
		EventVersion:  e.SchemaVersion,
		Payload:       body,
		Status:        entity.OutboxNew,
	}, nil
}
