package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fulfillment/internal/appers"
	"fulfillment/internal/application/entity"
	"fulfillment/internal/application/repo"
	"fulfillment/internal/transport/payment"
	"fulfillment/pkg/circuitbreaker"
	"fulfillment/pkg/config"
	"fulfillment/pkg/metrics"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

const (
	breakerInventory = "inventory"
	breakerPayment   = "payment-gateway"

	// carrier promise when a shipment is assigned
	deliveryEstimate = 72 * time.Hour
)

// Handlers react to saga events. Each handler runs inside one transaction
// together with the inbox mark and the outbox records it stages, so effects
// and follow-up events commit or vanish together.
type Handlers struct {
	repo     repo.Repo
	tx       repo.Transactions
	gateway  payment.Gateway
	breakers *circuitbreaker.Registry
	cfg      *config.Config
	logger   *zap.SugaredLogger
	m        *metrics.Metrics
}

func NewHandlers(repo repo.Repo, tx repo.Transactions, gateway payment.Gateway,
	breakers *circuitbreaker.Registry, cfg *config.Config, logger *zap.SugaredLogger, m *metrics.Metrics) *Handlers {
	return &Handlers{
		repo:     repo,
		tx:       tx,
		gateway:  gateway,
		breakers: breakers,
		cfg:      cfg,
		logger:   logger,
		m:        m,
	}
}

func (h *Handlers) step(name, result string) {
	if h.m != nil {
		h.m.Saga.StepsTotal.WithLabelValues(name, result).Inc()
	}
}

func (h *Handlers) compensated(reason string) {
	if h.m != nil {
		h.m.Saga.CompensationsTotal.WithLabelValues(reason).Inc()
	}
}

// stage marshals a payload into an envelope continuing env's saga and stages
// it in the outbox.
func (h *Handlers) stage(ctx context.Context, env *Envelope, aggregateID uuid.UUID,
	agg entity.OutboxAggregate, eventType string, payload any) error {

	next, err := NewEnvelope(aggregateID, env.SagaID, uuid.NullUUID{UUID: env.EventID, Valid: true}, payload)
	if err != nil {
		return err
	}
	evt, err := next.Outbox(agg, eventType)
	if err != nil {
		return err
	}
	return h.repo.InsertOutbox(ctx, evt)
}

// HandleOrderCreated is the inventory step: one time-bounded reservation per
// item. The stock check and the holds commit atomically; a partial failure
// releases what was already held and reports inventory.failed instead.
func (h *Handlers) HandleOrderCreated(ctx context.Context, env *Envelope) error {
	var p OrderCreatedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("order.created payload: %w", err)
	}
	h.logger.Debugf("[order: %s] inventory step started, %d items", p.OrderID, len(p.Items))

	var insufficient bool
	br := h.breakers.GetOrCreate(breakerInventory)
	var reserved []entity.StockReservation

	err := br.Do(ctx, func(ctx context.Context) error {
		for _, item := range p.Items {
			if err := h.repo.ReserveStock(ctx, item.ProductID, item.Quantity); err != nil {
				if errors.Is(err, appers.ErrInsufficientStock) {
					// out of stock is an answer, not an infrastructure fault
					insufficient = true
					return nil
				}
				return err
			}

			id, err := uuid.NewV4()
			if err != nil {
				return err
			}
			res := entity.StockReservation{
				ReservationID: id,
				OrderID:       p.OrderID,
				ProductID:     item.ProductID,
				Quantity:      item.Quantity,
				CustomerID:    p.CustomerID,
				Status:        entity.ReservationActive,
				ExpiresAt:     time.Now().UTC().Add(h.cfg.Reservation.TTL),
			}
			if err := h.repo.InsertReservation(ctx, &res); err != nil {
				return err
			}
			reserved = append(reserved, res)
		}
		return nil
	})
	if err != nil {
		h.step("inventory", "error")
		return err
	}

	if insufficient {
		// put back the holds taken before the shortage
		for _, res := range reserved {
			if err := h.repo.TransitionReservation(ctx, res.ReservationID, entity.ReservationReleased); err != nil {
				return err
			}
			if err := h.repo.ReleaseStock(ctx, res.ProductID, res.Quantity); err != nil {
				return err
			}
		}

		h.step("inventory", "insufficient")
		h.logger.Warnf("[order: %s] insufficient stock, %d holds released", p.OrderID, len(reserved))

		if _, err := h.repo.AdvanceSaga(ctx, env.SagaID, entity.SagaCompensating, "inventory.failed", "insufficient stock"); err != nil {
			return err
		}
		return h.stage(ctx, env, p.OrderID, entity.AggregateInventory, EventInventoryFailed, InventoryFailedPayload{
			OrderID: p.OrderID,
			Reason:  "insufficient stock",
		})
	}

	items := make([]ReservedItem, 0, len(reserved))
	for _, res := range reserved {
		items = append(items, ReservedItem{
			ReservationID: res.ReservationID,
			ProductID:     res.ProductID,
			Quantity:      res.Quantity,
		})
	}

	if _, err := h.repo.AdvanceSaga(ctx, env.SagaID, entity.SagaInventoryReserved, "inventory.reserved", ""); err != nil {
		return err
	}

	h.step("inventory", "reserved")
	h.logger.Infof("[order: %s] %d reservations placed", p.OrderID, len(items))

	return h.stage(ctx, env, p.OrderID, entity.AggregateInventory, EventInventoryReserved, InventoryReservedPayload{
		OrderID:      p.OrderID,
		CustomerID:   p.CustomerID,
		Reservations: items,
		TotalAmount:  p.TotalAmount,
	})
}

// HandleInventoryReserved is the payment step. The gateway call runs behind
// its breaker; a decline is a business outcome and produces payment.failed,
// while a transport fault (or an open circuit) aborts the transaction so the
// event is retried later.
func (h *Handlers) HandleInventoryReserved(ctx context.Context, env *Envelope) error {
	var p InventoryReservedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("inventory.reserved payload: %w", err)
	}
	h.logger.Debugf("[order: %s] payment step started, amount=%s", p.OrderID, p.TotalAmount)

	var result *payment.ChargeResult
	var declined *payment.ErrDeclined

	br := h.breakers.GetOrCreate(breakerPayment)
	err := br.Do(ctx, func(ctx context.Context) error {
		res, err := h.gateway.Charge(ctx, payment.ChargeRequest{
			OrderID:    p.OrderID,
			CustomerID: p.CustomerID,
			Amount:     p.TotalAmount,
		})
		if err != nil {
			var d *payment.ErrDeclined
			if errors.As(err, &d) {
				declined = d
				return nil
			}
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		h.step("payment", "error")
		return err
	}

	if declined != nil {
		h.step("payment", "declined")
		if _, err := h.repo.AdvanceSaga(ctx, env.SagaID, entity.SagaCompensating, "payment.failed", declined.Reason); err != nil {
			return err
		}
		return h.stage(ctx, env, p.OrderID, entity.AggregatePayment, EventPaymentFailed, PaymentFailedPayload{
			OrderID: p.OrderID,
			Reason:  declined.Reason,
		})
	}

	// the charge id lands on the order in the same tx as the event: a later
	// compensation reads it back to refund
	if err := h.repo.SetOrderPayment(ctx, p.OrderID, result.PaymentID); err != nil {
		return err
	}

	if _, err := h.repo.AdvanceSaga(ctx, env.SagaID, entity.SagaPaymentConfirmed, "payment.confirmed", ""); err != nil {
		return err
	}

	h.step("payment", "confirmed")
	h.logger.Infof("[order: %s] payment confirmed, paymentID=%s", p.OrderID, result.PaymentID)

	return h.stage(ctx, env, p.OrderID, entity.AggregatePayment, EventPaymentConfirmed, PaymentConfirmedPayload{
		OrderID:   p.OrderID,
		PaymentID: result.PaymentID,
		Amount:    p.TotalAmount,
	})
}

// HandlePaymentConfirmed confirms the order, burns the reservations and
// opens the shipment. A route with no carrier leaves the shipment PENDING;
// the order is confirmed regardless.
func (h *Handlers) HandlePaymentConfirmed(ctx context.Context, env *Envelope) error {
	var p PaymentConfirmedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("payment.confirmed payload: %w", err)
	}
	h.logger.Debugf("[order: %s] confirmation step started", p.OrderID)

	order, err := h.repo.GetOrder(ctx, p.OrderID)
	if err != nil {
		return err
	}

	reservations, err := h.repo.ReservationsByOrder(ctx, p.OrderID)
	if err != nil {
		return err
	}
	for _, res := range reservations {
		if res.Status != entity.ReservationActive {
			continue
		}
		if err := h.repo.TransitionReservation(ctx, res.ReservationID, entity.ReservationConfirmed); err != nil {
			if errors.Is(err, appers.ErrReservationNotActive) {
				h.logger.Warnf("[reservation: %s] lost to a concurrent transition, skipping confirm", res.ReservationID)
				continue
			}
			return err
		}
		if err := h.repo.ConfirmStock(ctx, res.ProductID, res.Quantity); err != nil {
			return err
		}
		if h.m != nil {
			h.m.Reservation.TransitionsTotal.WithLabelValues("confirmed").Inc()
		}
	}

	if err := h.repo.UpdateOrderStatus(ctx, p.OrderID, entity.OrderConfirmed, ""); err != nil {
		return err
	}

	estimated, err := h.openShipment(ctx, order)
	if err != nil {
		return err
	}

	if _, err := h.repo.AdvanceSaga(ctx, env.SagaID, entity.SagaPaymentConfirmed, "order.confirmed", ""); err != nil {
		return err
	}

	h.step("confirmation", "confirmed")
	return h.stage(ctx, env, p.OrderID, entity.AggregateOrder, EventOrderConfirmed, OrderConfirmedPayload{
		OrderID:           p.OrderID,
		EstimatedDelivery: estimated,
	})
}

// openShipment creates the shipment and tries to pick the best carrier for
// the route. No carrier is not an error: the shipment stays PENDING.
func (h *Handlers) openShipment(ctx context.Context, order *entity.Order) (time.Time, error) {
	shipmentID, err := uuid.NewV4()
	if err != nil {
		return time.Time{}, err
	}

	inserted, err := h.repo.InsertShipment(ctx, &entity.Shipment{
		ShipmentID:   shipmentID,
		OrderID:      order.ID,
		Status:       entity.ShipmentPending,
		PickupZone:   order.PickupZone,
		DeliveryZone: order.DeliveryZone,
	})
	if err != nil {
		return time.Time{}, err
	}
	if !inserted {
		existing, err := h.repo.ShipmentByOrder(ctx, order.ID)
		if err != nil {
			return time.Time{}, err
		}
		if existing != nil {
			return existing.EstimatedDelivery, nil
		}
		return time.Time{}, nil
	}

	carrier, err := h.repo.BestCarrier(ctx, order.PickupZone, order.DeliveryZone)
	if err != nil {
		if errors.Is(err, appers.ErrCarrierNotFound) {
			h.logger.Warnf("[order: %s] no carrier for %s -> %s, shipment stays pending",
				order.ID, order.PickupZone, order.DeliveryZone)
			h.step("shipment", "unassigned")
			return time.Time{}, nil
		}
		return time.Time{}, err
	}

	estimated := time.Now().UTC().Add(deliveryEstimate)
	if err := h.repo.AssignShipment(ctx, shipmentID, carrier.CarrierID, estimated); err != nil {
		return time.Time{}, err
	}

	h.step("shipment", "assigned")
	h.logger.Infof("[order: %s] shipment assigned to %s (rating %.1f)", order.ID, carrier.Name, carrier.Rating)
	return estimated, nil
}

// HandleInventoryFailed cancels the order; nothing to unwind, the inventory
// handler already released its partial holds and no payment was attempted.
func (h *Handlers) HandleInventoryFailed(ctx context.Context, env *Envelope) error {
	var p InventoryFailedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("inventory.failed payload: %w", err)
	}

	if err := h.cancelOrder(ctx, env, p.OrderID, p.Reason); err != nil {
		return err
	}
	h.compensated("inventory_failed")
	return nil
}

// HandlePaymentFailed compensates the inventory step and cancels the order.
func (h *Handlers) HandlePaymentFailed(ctx context.Context, env *Envelope) error {
	var p PaymentFailedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("payment.failed payload: %w", err)
	}

	if err := h.releaseActiveReservations(ctx, p.OrderID); err != nil {
		return err
	}
	if err := h.cancelOrder(ctx, env, p.OrderID, p.Reason); err != nil {
		return err
	}
	h.compensated("payment_failed")
	return nil
}

// cancelOrder is the compensated ending: the order and the saga both end
// CANCELLED, and saga.failed records why.
func (h *Handlers) cancelOrder(ctx context.Context, env *Envelope, orderID uuid.UUID, reason string) error {
	if err := h.repo.UpdateOrderStatus(ctx, orderID, entity.OrderCancelled, reason); err != nil {
		if errors.Is(err, appers.ErrOrderNotCancellable) {
			h.logger.Infof("[order: %s] already terminal, skipping cancel", orderID)
			return nil
		}
		return err
	}

	if _, err := h.repo.AdvanceSaga(ctx, env.SagaID, entity.SagaCancelled, "order.cancelled", reason); err != nil {
		return err
	}

	if err := h.stage(ctx, env, orderID, entity.AggregateOrder, EventOrderCancelled, OrderCancelledPayload{
		OrderID: orderID,
		Reason:  reason,
	}); err != nil {
		return err
	}
	return h.stage(ctx, env, orderID, entity.AggregateSaga, EventSagaFailed, SagaFailedPayload{
		OrderID: orderID,
		Reason:  reason,
	})
}

// failOrder is the unrecoverable ending, reserved for a saga the supervisor
// gave up on.
func (h *Handlers) failOrder(ctx context.Context, env *Envelope, orderID uuid.UUID, reason string) error {
	if err := h.repo.UpdateOrderStatus(ctx, orderID, entity.OrderFailed, reason); err != nil {
		if errors.Is(err, appers.ErrOrderNotCancellable) {
			h.logger.Infof("[order: %s] already terminal, skipping fail", orderID)
			return nil
		}
		return err
	}

	if _, err := h.repo.AdvanceSaga(ctx, env.SagaID, entity.SagaFailed, "order.failed", reason); err != nil {
		return err
	}

	if err := h.stage(ctx, env, orderID, entity.AggregateOrder, EventOrderFailed, OrderFailedPayload{
		OrderID: orderID,
		Reason:  reason,
	}); err != nil {
		return err
	}
	return h.stage(ctx, env, orderID, entity.AggregateSaga, EventSagaFailed, SagaFailedPayload{
		OrderID: orderID,
		Reason:  reason,
	})
}

// HandleOrderCancelled unwinds holds after a client-initiated cancellation.
func (h *Handlers) HandleOrderCancelled(ctx context.Context, env *Envelope) error {
	var p OrderCancelledPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("order.cancelled payload: %w", err)
	}

	if err := h.releaseActiveReservations(ctx, p.OrderID); err != nil {
		return err
	}
	h.compensated("order_cancelled")
	return nil
}

// HandleCompensationRequired is the generic unwind: release the holds, refund
// the charge if one was made, cancel the order and close the saga. Emitted by
// the reaper and the supervisor.
func (h *Handlers) HandleCompensationRequired(ctx context.Context, env *Envelope) error {
	var p CompensationRequiredPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("compensation_required payload: %w", err)
	}
	h.logger.Warnf("[order: %s] compensation required: step=%s reason=%s", p.OrderID, p.Step, p.Reason)

	if err := h.releaseActiveReservations(ctx, p.OrderID); err != nil {
		return err
	}
	if err := h.refundIfCharged(ctx, p.OrderID); err != nil {
		return err
	}

	if p.Step == "supervisor.timeout" {
		// a stalled saga is unrecoverable, not compensated
		if err := h.failOrder(ctx, env, p.OrderID, p.Reason); err != nil {
			return err
		}
		h.compensated(p.Step)
		return nil
	}

	if err := h.repo.UpdateOrderStatus(ctx, p.OrderID, entity.OrderCancelled, p.Reason); err != nil {
		if !errors.Is(err, appers.ErrOrderNotCancellable) {
			return err
		}
		h.logger.Infof("[order: %s] already terminal, compensation is hold release only", p.OrderID)
	}

	if _, err := h.repo.AdvanceSaga(ctx, env.SagaID, entity.SagaCancelled, "compensated", p.Reason); err != nil {
		return err
	}

	h.compensated(p.Step)
	return h.stage(ctx, env, p.OrderID, entity.AggregateOrder, EventOrderCancelled, OrderCancelledPayload{
		OrderID: p.OrderID,
		Reason:  p.Reason,
	})
}

// HandleOrderDelivered completes the order and the saga.
func (h *Handlers) HandleOrderDelivered(ctx context.Context, env *Envelope) error {
	var p OrderDeliveredPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("order.delivered payload: %w", err)
	}
	h.logger.Debugf("[order: %s] delivery step started", p.OrderID)

	if err := h.repo.MarkShipmentDelivered(ctx, p.OrderID); err != nil {
		return err
	}
	if err := h.repo.UpdateOrderStatus(ctx, p.OrderID, entity.OrderCompleted, ""); err != nil {
		if errors.Is(err, appers.ErrOrderNotCancellable) {
			h.logger.Infof("[order: %s] already terminal, skipping complete", p.OrderID)
			return nil
		}
		return err
	}
	if _, err := h.repo.AdvanceSaga(ctx, env.SagaID, entity.SagaCompleted, "order.delivered", ""); err != nil {
		return err
	}

	h.step("delivery", "completed")
	return h.stage(ctx, env, p.OrderID, entity.AggregateSaga, EventSagaCompleted, SagaCompletedPayload{
		OrderID: p.OrderID,
	})
}

// refundIfCharged reverses the payment step. No charge id on the order means
// the saga never got past payment and there is nothing to reverse. The call
// runs behind the payment breaker; an error aborts the transaction, so the
// redelivered event retries the refund and the gateway dedups it by charge id.
func (h *Handlers) refundIfCharged(ctx context.Context, orderID uuid.UUID) error {
	order, err := h.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, appers.ErrOrderNotFound) {
			return nil
		}
		return err
	}
	if order.PaymentID == "" {
		return nil
	}

	br := h.breakers.GetOrCreate(breakerPayment)
	if err := br.Do(ctx, func(ctx context.Context) error {
		return h.gateway.Refund(ctx, order.PaymentID)
	}); err != nil {
		h.step("refund", "error")
		return err
	}

	h.step("refund", "refunded")
	h.logger.Infof("[order: %s] payment %s refunded", orderID, order.PaymentID)
	return nil
}

func (h *Handlers) releaseActiveReservations(ctx context.Context, orderID uuid.UUID) error {
	reservations, err := h.repo.ReservationsByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	for _, res := range reservations {
		if res.Status != entity.ReservationActive {
			continue
		}
		if err := h.repo.TransitionReservation(ctx, res.ReservationID, entity.ReservationReleased); err != nil {
			if errors.Is(err, appers.ErrReservationNotActive) {
				continue
			}
			return err
		}
		if err := h.repo.ReleaseStock(ctx, res.ProductID, res.Quantity); err != nil {
			return err
		}
		if h.m != nil {
			h.m.Reservation.TransitionsTotal.WithLabelValues("released").Inc()
		}
	}
	return nil
}
