package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
)

type OutboxStatus string

const (
	OutboxNew    OutboxStatus = "NEW"
	OutboxSent   OutboxStatus = "SENT"
	OutboxFailed OutboxStatus = "FAILED"
	OutboxGaveUp OutboxStatus = "GAVE_UP"
)

type OutboxAggregate string

const (
	AggregateOrder     OutboxAggregate = "order"
	AggregateInventory OutboxAggregate = "inventory"
	AggregatePayment   OutboxAggregate = "payment"
	AggregateSaga      OutboxAggregate = "saga"
)

// OutboxEvent is the durable unit the relay drains to the broker. It is
// written in the same transaction as the state change it describes.
//
// EventID doubles as the broker idempotency key and is never reused.
// Status moves NEW/FAILED -> SENT exactly once and never reverts; GAVE_UP is
// the dead-letter terminal after MaxAttempts.
type OutboxEvent struct {
	EventID       uuid.UUID       `db:"event_id"`
	AggregateType OutboxAggregate `db:"aggregate_type"`
	AggregateID   uuid.UUID       `db:"aggregate_id"`
	EventType     string          `db:"event_type"`     // "created", "reserved", ...
	EventVersion  int             `db:"event_version"`  // payload schema version
	Payload       json.RawMessage `db:"payload"`        // serialized envelope body
	Status        OutboxStatus    `db:"status"`         // NEW | SENT | FAILED | GAVE_UP
	Attempts      int             `db:"attempts"`
	NextAttemptAt time.Time       `db:"next_attempt_at"`
	CreatedAt     time.Time       `db:"created_at"`
}

// Subject derives the deterministic broker destination:
// {prefix}.{aggregateType}.{eventType}.v{eventVersion}.
func (e *OutboxEvent) Subject(prefix string) string {
	if prefix == "" {
		return fmt.Sprintf("%s.%s.v%d", e.AggregateType, e.EventType, e.EventVersion)
	}
	return fmt.Sprintf("%s.%s.%s.v%d", prefix, e.AggregateType, e.EventType, e.EventVersion)
}
