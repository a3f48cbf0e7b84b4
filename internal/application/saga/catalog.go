package saga

import (
	"fmt"

	"fulfillment/internal/application/entity"
)

// Event types per aggregate. A wire subject is
// {prefix}.{aggregateType}.{eventType}.v{version}; see entity.OutboxEvent.
const (
	EventOrderCreated   = "created"
	EventOrderConfirmed = "confirmed"
	EventOrderCancelled = "cancelled"
	EventOrderFailed    = "failed"
	EventOrderDelivered = "delivered"

	EventInventoryReserved = "reserved"
	EventInventoryFailed   = "failed"

	EventPaymentConfirmed = "confirmed"
	EventPaymentFailed    = "failed"

	EventSagaStarted              = "started"
	EventSagaCompleted            = "completed"
	EventSagaFailed               = "failed"
	EventSagaCompensationRequired = "compensation_required"
)

// SchemaVersion of every payload in this catalog.
const SchemaVersion = 1

func subject(prefix string, agg entity.OutboxAggregate, eventType string) string {
	if prefix == "" {
		return fmt.Sprintf("%s.%s.v%d", agg, eventType, SchemaVersion)
	}
	return fmt.Sprintf("%s.%s.%s.v%d", prefix, agg, eventType, SchemaVersion)
}

// Subjects lists every topic the fulfillment consumer group subscribes to.
func Subjects(prefix string) []string {
	return []string{
		subject(prefix, entity.AggregateOrder, EventOrderCreated),
		subject(prefix, entity.AggregateOrder, EventOrderConfirmed),
		subject(prefix, entity.AggregateOrder, EventOrderCancelled),
		subject(prefix, entity.AggregateOrder, EventOrderFailed),
		subject(prefix, entity.AggregateOrder, EventOrderDelivered),
		subject(prefix, entity.AggregateInventory, EventInventoryReserved),
		subject(prefix, entity.AggregateInventory, EventInventoryFailed),
		subject(prefix, entity.AggregatePayment, EventPaymentConfirmed),
		subject(prefix, entity.AggregatePayment, EventPaymentFailed),
		subject(prefix, entity.AggregateSaga, EventSagaStarted),
		subject(prefix, entity.AggregateSaga, EventSagaCompleted),
		subject(prefix, entity.AggregateSaga, EventSagaFailed),
		subject(prefix, entity.AggregateSaga, EventSagaCompensationRequired),
	}
}
