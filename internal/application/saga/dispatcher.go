package saga

import (
	"context"

	"fulfillment/internal/application/entity"
)

// HandlerFunc processes one decoded envelope inside an open transaction.
type HandlerFunc func(ctx context.Context, env *Envelope) error

// Routes maps every subscribed topic to its handler. Topics without a
// reactive step (our own order.confirmed, the saga bookkeeping events) are
// absent; the dispatcher acknowledges them without effects.
func (h *Handlers) Routes(prefix string) map[string]HandlerFunc {
	return map[string]HandlerFunc{
		subject(prefix, entity.AggregateOrder, EventOrderCreated):            h.HandleOrderCreated,
		subject(prefix, entity.AggregateOrder, EventOrderCancelled):          h.HandleOrderCancelled,
		subject(prefix, entity.AggregateOrder, EventOrderDelivered):          h.HandleOrderDelivered,
		subject(prefix, entity.AggregateInventory, EventInventoryReserved):   h.HandleInventoryReserved,
		subject(prefix, entity.AggregateInventory, EventInventoryFailed):     h.HandleInventoryFailed,
		subject(prefix, entity.AggregatePayment, EventPaymentConfirmed):      h.HandlePaymentConfirmed,
		subject(prefix, entity.AggregatePayment, EventPaymentFailed):         h.HandlePaymentFailed,
		subject(prefix, entity.AggregateSaga, EventSagaCompensationRequired): h.HandleCompensationRequired,
	}
}

// Dispatch runs the handler for topic with the inbox mark in one transaction.
// A duplicate delivery finds its event id already recorded and commits
// nothing but the (idempotent) mark.
func (h *Handlers) Dispatch(ctx context.Context, topic string, env *Envelope, fn HandlerFunc) (duplicate bool, err error) {
	err = h.tx.InTx(ctx, func(ctx context.Context) error {
		fresh, err := h.repo.MarkEventProcessed(ctx, env.EventID, topic)
		if err != nil {
			return err
		}
		if !fresh {
			duplicate = true
			return nil
		}
		if fn == nil {
			return nil
		}
		return fn(ctx, env)
	})
	return duplicate, err
}
