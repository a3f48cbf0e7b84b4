package saga

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"fulfillment/internal/appers"
	"fulfillment/internal/application/entity"
	"fulfillment/internal/application/repo"
	"fulfillment/internal/transport/payment"
	"fulfillment/pkg/circuitbreaker"
	"fulfillment/pkg/config"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRepo keeps the saga world in memory: stock counters, reservations,
// orders, shipments. Methods not listed here panic via the embedded interface.
type fakeRepo struct {
	repo.Repo

	stock        map[uuid.UUID]int
	released     map[uuid.UUID]int
	confirmed    map[uuid.UUID]int
	reservations []entity.StockReservation
	orders       map[uuid.UUID]*entity.Order
	outbox       []entity.OutboxEvent
	advances     []advance
	processed    map[uuid.UUID]bool
	stalled      []entity.SagaState

	carrier       *entity.Carrier
	shipment      *entity.Shipment
	assignedTo    uuid.UUID
	deliveredFor  uuid.UUID
	advanceResult bool
}

type advance struct {
	status entity.SagaStatus
	step   string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		stock:         map[uuid.UUID]int{},
		released:      map[uuid.UUID]int{},
		confirmed:     map[uuid.UUID]int{},
		orders:        map[uuid.UUID]*entity.Order{},
		processed:     map[uuid.UUID]bool{},
		advanceResult: true,
	}
}

func (r *fakeRepo) ReserveStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	if r.stock[productID] < quantity {
		return appers.ErrInsufficientStock
	}
	r.stock[productID] -= quantity
	return nil
}

func (r *fakeRepo) ConfirmStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	r.confirmed[productID] += quantity
	return nil
}

func (r *fakeRepo) ReleaseStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	r.stock[productID] += quantity
	r.released[productID] += quantity
	return nil
}

func (r *fakeRepo) InsertReservation(ctx context.Context, res *entity.StockReservation) error {
	r.reservations = append(r.reservations, *res)
	return nil
}

func (r *fakeRepo) ReservationsByOrder(ctx context.Context, orderID uuid.UUID) ([]entity.StockReservation, error) {
	var out []entity.StockReservation
	for _, res := range r.reservations {
		if res.OrderID == orderID {
			out = append(out, res)
		}
	}
	return out, nil
}

func (r *fakeRepo) TransitionReservation(ctx context.Context, id uuid.UUID, to entity.ReservationStatus) error {
	for i := range r.reservations {
		if r.reservations[i].ReservationID != id {
			continue
		}
		if r.reservations[i].Status != entity.ReservationActive {
			return appers.ErrReservationNotActive
		}
		r.reservations[i].Status = to
		return nil
	}
	return appers.ErrReservationNotActive
}

func (r *fakeRepo) GetOrder(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, appers.ErrOrderNotFound
	}
	return o, nil
}

func (r *fakeRepo) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status entity.OrderStatus, reason string) error {
	o, ok := r.orders[id]
	if !ok || o.Status.Terminal() {
		return appers.ErrOrderNotCancellable
	}
	o.Status = status
	o.CancelReason = reason
	return nil
}

func (r *fakeRepo) SetOrderPayment(ctx context.Context, id uuid.UUID, paymentID string) error {
	if o, ok := r.orders[id]; ok {
		o.PaymentID = paymentID
	}
	return nil
}

func (r *fakeRepo) AdvanceSaga(ctx context.Context, sagaID uuid.UUID, status entity.SagaStatus, step, lastError string) (bool, error) {
	r.advances = append(r.advances, advance{status: status, step: step})
	return r.advanceResult, nil
}

func (r *fakeRepo) InsertOutbox(ctx context.Context, e *entity.OutboxEvent) error {
	r.outbox = append(r.outbox, *e)
	return nil
}

func (r *fakeRepo) MarkEventProcessed(ctx context.Context, eventID uuid.UUID, topic string) (bool, error) {
	if r.processed[eventID] {
		return false, nil
	}
	r.processed[eventID] = true
	return true, nil
}

func (r *fakeRepo) BestCarrier(ctx context.Context, pickupZone, deliveryZone string) (*entity.Carrier, error) {
	if r.carrier == nil {
		return nil, appers.ErrCarrierNotFound
	}
	return r.carrier, nil
}

func (r *fakeRepo) InsertShipment(ctx context.Context, s *entity.Shipment) (bool, error) {
	if r.shipment != nil {
		return false, nil
	}
	cp := *s
	r.shipment = &cp
	return true, nil
}

func (r *fakeRepo) ShipmentByOrder(ctx context.Context, orderID uuid.UUID) (*entity.Shipment, error) {
	return r.shipment, nil
}

func (r *fakeRepo) AssignShipment(ctx context.Context, shipmentID, carrierID uuid.UUID, estimatedDelivery time.Time) error {
	r.assignedTo = carrierID
	r.shipment.Status = entity.ShipmentAssigned
	r.shipment.EstimatedDelivery = estimatedDelivery
	return nil
}

func (r *fakeRepo) MarkShipmentDelivered(ctx context.Context, orderID uuid.UUID) error {
	r.deliveredFor = orderID
	return nil
}

type fakeTx struct{}

func (fakeTx) CreateOrder(ctx context.Context, in *entity.Order, events ...*entity.OutboxEvent) error {
	return nil
}

func (fakeTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (fakeTx) GetOperationsFromOutbox(ctx context.Context, c config.RelayConfig) ([]entity.OutboxEvent, error) {
	return nil, nil
}

func (fakeTx) MarkSent(ctx context.Context, eventID uuid.UUID) error { return nil }

type fakeGateway struct {
	result    *payment.ChargeResult
	err       error
	refundErr error
	calls     int
	refunds   []string
}

func (g *fakeGateway) Charge(ctx context.Context, req payment.ChargeRequest) (*payment.ChargeResult, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

func (g *fakeGateway) Refund(ctx context.Context, paymentID string) error {
	if g.refundErr != nil {
		return g.refundErr
	}
	g.refunds = append(g.refunds, paymentID)
	return nil
}

func newTestHandlers(r *fakeRepo, g payment.Gateway) *Handlers {
	logger := zap.NewNop().Sugar()
	breakers := circuitbreaker.NewRegistry(circuitbreaker.Config{
		Threshold:        3,
		ResetTimeout:     time.Minute,
		MonitoringWindow: time.Minute,
	}, logger, nil)
	cfg := &config.Config{
		Reservation: config.Reservation{TTL: 15 * time.Minute},
	}
	return NewHandlers(r, fakeTx{}, g, breakers, cfg, logger, nil)
}

func orderCreatedEnvelope(t *testing.T, p OrderCreatedPayload) *Envelope {
	t.Helper()
	env, err := NewEnvelope(p.OrderID, uuid.Must(uuid.NewV4()), uuid.NullUUID{}, p)
	require.NoError(t, err)
	return env
}

func findOutbox(events []entity.OutboxEvent, agg entity.OutboxAggregate, eventType string) *entity.OutboxEvent {
	for i := range events {
		if events[i].AggregateType == agg && events[i].EventType == eventType {
			return &events[i]
		}
	}
	return nil
}

func TestHandleOrderCreated_ReservesAllItems(t *testing.T) {
	t.Parallel()

	productA := uuid.Must(uuid.NewV4())
	productB := uuid.Must(uuid.NewV4())

	r := newFakeRepo()
	r.stock[productA] = 10
	r.stock[productB] = 5

	h := newTestHandlers(r, &fakeGateway{})
	orderID := uuid.Must(uuid.NewV4())
	env := orderCreatedEnvelope(t, OrderCreatedPayload{
		OrderID:    orderID,
		CustomerID: uuid.Must(uuid.NewV4()),
		Items: []entity.OrderItem{
			{ProductID: productA, Quantity: 3, UnitPrice: "5.00"},
			{ProductID: productB, Quantity: 2, UnitPrice: "7.50"},
		},
		TotalAmount: "30.00",
	})

	require.NoError(t, h.HandleOrderCreated(context.Background(), env))

	assert.Equal(t, 7, r.stock[productA])
	assert.Equal(t, 3, r.stock[productB])
	require.Len(t, r.reservations, 2)
	for _, res := range r.reservations {
		assert.Equal(t, entity.ReservationActive, res.Status)
		assert.True(t, res.ExpiresAt.After(time.Now().UTC()))
	}

	require.Len(t, r.advances, 1)
	assert.Equal(t, entity.SagaInventoryReserved, r.advances[0].status)

	evt := findOutbox(r.outbox, entity.AggregateInventory, EventInventoryReserved)
	require.NotNil(t, evt)
	assert.Equal(t, orderID, evt.AggregateID)
}

func TestHandleOrderCreated_InsufficientStockReleasesPartialHolds(t *testing.T) {
	t.Parallel()

	productA := uuid.Must(uuid.NewV4())
	productB := uuid.Must(uuid.NewV4())

	r := newFakeRepo()
	r.stock[productA] = 10
	r.stock[productB] = 1 // second item cannot be held

	h := newTestHandlers(r, &fakeGateway{})
	orderID := uuid.Must(uuid.NewV4())
	env := orderCreatedEnvelope(t, OrderCreatedPayload{
		OrderID:    orderID,
		CustomerID: uuid.Must(uuid.NewV4()),
		Items: []entity.OrderItem{
			{ProductID: productA, Quantity: 3, UnitPrice: "5.00"},
			{ProductID: productB, Quantity: 2, UnitPrice: "7.50"},
		},
		TotalAmount: "30.00",
	})

	require.NoError(t, h.HandleOrderCreated(context.Background(), env))

	// the hold on A was put back and its reservation closed
	assert.Equal(t, 10, r.stock[productA])
	assert.Equal(t, 3, r.released[productA])
	require.Len(t, r.reservations, 1)
	assert.Equal(t, entity.ReservationReleased, r.reservations[0].Status)

	require.Len(t, r.advances, 1)
	assert.Equal(t, entity.SagaCompensating, r.advances[0].status)

	assert.NotNil(t, findOutbox(r.outbox, entity.AggregateInventory, EventInventoryFailed))
	assert.Nil(t, findOutbox(r.outbox, entity.AggregateInventory, EventInventoryReserved))
}

func TestHandleOrderCreated_RepoFaultCountsAgainstBreaker(t *testing.T) {
	t.Parallel()

	r := newFakeRepo()
	h := newTestHandlers(r, &fakeGateway{})

	boom := errors.New("connection reset")
	faulty := &faultyRepo{fakeRepo: r, err: boom}
	h.repo = faulty

	env := orderCreatedEnvelope(t, OrderCreatedPayload{
		OrderID: uuid.Must(uuid.NewV4()),
		Items:   []entity.OrderItem{{ProductID: uuid.Must(uuid.NewV4()), Quantity: 1, UnitPrice: "1.00"}},
	})

	// threshold is 3: the fourth call finds the circuit open
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, h.HandleOrderCreated(context.Background(), env), boom)
	}
	err := h.HandleOrderCreated(context.Background(), env)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, 3, faulty.calls, "an open circuit must not reach the store")
}

type faultyRepo struct {
	*fakeRepo
	err   error
	calls int
}

func (r *faultyRepo) ReserveStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	r.calls++
	return r.err
}

func TestHandleInventoryReserved_ChargesAndAdvances(t *testing.T) {
	t.Parallel()

	r := newFakeRepo()
	g := &fakeGateway{result: &payment.ChargeResult{PaymentID: "pay-77", Status: "approved"}}
	h := newTestHandlers(r, g)

	orderID := uuid.Must(uuid.NewV4())
	r.orders[orderID] = &entity.Order{ID: orderID, Status: entity.OrderPending}
	env, err := NewEnvelope(orderID, uuid.Must(uuid.NewV4()), uuid.NullUUID{}, InventoryReservedPayload{
		OrderID:     orderID,
		TotalAmount: "30.00",
	})
	require.NoError(t, err)

	require.NoError(t, h.HandleInventoryReserved(context.Background(), env))

	assert.Equal(t, 1, g.calls)
	assert.Equal(t, "pay-77", r.orders[orderID].PaymentID, "charge id must land on the order")
	require.Len(t, r.advances, 1)
	assert.Equal(t, entity.SagaPaymentConfirmed, r.advances[0].status)

	evt := findOutbox(r.outbox, entity.AggregatePayment, EventPaymentConfirmed)
	require.NotNil(t, evt)

	got, err := DecodeEnvelope(evt.Payload)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, got.CausationID.UUID)
}

func TestHandleInventoryReserved_DeclineIsNotABreakerFailure(t *testing.T) {
	t.Parallel()

	r := newFakeRepo()
	orderID := uuid.Must(uuid.NewV4())
	g := &fakeGateway{err: &payment.ErrDeclined{OrderID: orderID, Reason: "insufficient funds"}}
	h := newTestHandlers(r, g)

	env, err := NewEnvelope(orderID, uuid.Must(uuid.NewV4()), uuid.NullUUID{}, InventoryReservedPayload{
		OrderID:     orderID,
		TotalAmount: "30.00",
	})
	require.NoError(t, err)

	// well past the threshold, the circuit must stay closed
	for i := 0; i < 5; i++ {
		require.NoError(t, h.HandleInventoryReserved(context.Background(), env))
	}
	assert.Equal(t, 5, g.calls)

	evt := findOutbox(r.outbox, entity.AggregatePayment, EventPaymentFailed)
	require.NotNil(t, evt)

	decoded, err := DecodeEnvelope(evt.Payload)
	require.NoError(t, err)
	var p PaymentFailedPayload
	require.NoError(t, json.Unmarshal(decoded.Payload, &p))
	assert.Equal(t, "insufficient funds", p.Reason)
}

func TestHandleInventoryReserved_GatewayFaultAborts(t *testing.T) {
	t.Parallel()

	r := newFakeRepo()
	g := &fakeGateway{err: errors.New("gateway timeout")}
	h := newTestHandlers(r, g)

	orderID := uuid.Must(uuid.NewV4())
	env, err := NewEnvelope(orderID, uuid.Must(uuid.NewV4()), uuid.NullUUID{}, InventoryReservedPayload{
		OrderID:     orderID,
		TotalAmount: "30.00",
	})
	require.NoError(t, err)

	// the error surfaces so the delivery is retried, nothing is staged
	assert.Error(t, h.HandleInventoryReserved(context.Background(), env))
	assert.Empty(t, r.outbox)
	assert.Empty(t, r.advances)
}

func TestHandlePaymentConfirmed_ConfirmsOrderAndAssignsCarrier(t *testing.T) {
	t.Parallel()

	orderID := uuid.Must(uuid.NewV4())
	productID := uuid.Must(uuid.NewV4())
	carrierID := uuid.Must(uuid.NewV4())

	r := newFakeRepo()
	r.orders[orderID] = &entity.Order{
		ID: orderID, Status: entity.OrderPending,
		PickupZone: "north", DeliveryZone: "south",
	}
	r.reservations = []entity.StockReservation{{
		ReservationID: uuid.Must(uuid.NewV4()),
		OrderID:       orderID,
		ProductID:     productID,
		Quantity:      2,
		Status:        entity.ReservationActive,
	}}
	r.carrier = &entity.Carrier{CarrierID: carrierID, Name: "Rapido", Rating: 4.8}

	h := newTestHandlers(r, &fakeGateway{})
	env, err := NewEnvelope(orderID, uuid.Must(uuid.NewV4()), uuid.NullUUID{}, PaymentConfirmedPayload{
		OrderID: orderID, PaymentID: "pay-1", Amount: "30.00",
	})
	require.NoError(t, err)

	require.NoError(t, h.HandlePaymentConfirmed(context.Background(), env))

	assert.Equal(t, entity.OrderConfirmed, r.orders[orderID].Status)
	assert.Equal(t, entity.ReservationConfirmed, r.reservations[0].Status)
	assert.Equal(t, 2, r.confirmed[productID])

	require.NotNil(t, r.shipment)
	assert.Equal(t, entity.ShipmentAssigned, r.shipment.Status)
	assert.Equal(t, carrierID, r.assignedTo)
	assert.False(t, r.shipment.EstimatedDelivery.IsZero())

	assert.NotNil(t, findOutbox(r.outbox, entity.AggregateOrder, EventOrderConfirmed))
}

func TestHandlePaymentConfirmed_NoCarrierIsNotFatal(t *testing.T) {
	t.Parallel()

	orderID := uuid.Must(uuid.NewV4())
	r := newFakeRepo()
	r.orders[orderID] = &entity.Order{
		ID: orderID, Status: entity.OrderPending,
		PickupZone: "north", DeliveryZone: "antarctica",
	}

	h := newTestHandlers(r, &fakeGateway{})
	env, err := NewEnvelope(orderID, uuid.Must(uuid.NewV4()), uuid.NullUUID{}, PaymentConfirmedPayload{
		OrderID: orderID, PaymentID: "pay-1", Amount: "30.00",
	})
	require.NoError(t, err)

	require.NoError(t, h.HandlePaymentConfirmed(context.Background(), env))

	// order confirmed, shipment waiting for a carrier
	assert.Equal(t, entity.OrderConfirmed, r.orders[orderID].Status)
	require.NotNil(t, r.shipment)
	assert.Equal(t, entity.ShipmentPending, r.shipment.Status)
	assert.NotNil(t, findOutbox(r.outbox, entity.AggregateOrder, EventOrderConfirmed))
}

func TestHandlePaymentFailed_ReleasesHoldsAndCancelsOrder(t *testing.T) {
	t.Parallel()

	orderID := uuid.Must(uuid.NewV4())
	productID := uuid.Must(uuid.NewV4())

	r := newFakeRepo()
	r.orders[orderID] = &entity.Order{ID: orderID, Status: entity.OrderPending}
	r.reservations = []entity.StockReservation{{
		ReservationID: uuid.Must(uuid.NewV4()),
		OrderID:       orderID,
		ProductID:     productID,
		Quantity:      3,
		Status:        entity.ReservationActive,
	}}

	h := newTestHandlers(r, &fakeGateway{})
	env, err := NewEnvelope(orderID, uuid.Must(uuid.NewV4()), uuid.NullUUID{}, PaymentFailedPayload{
		OrderID: orderID, Reason: "insufficient funds",
	})
	require.NoError(t, err)

	require.NoError(t, h.HandlePaymentFailed(context.Background(), env))

	assert.Equal(t, entity.ReservationReleased, r.reservations[0].Status)
	assert.Equal(t, 3, r.released[productID])
	assert.Equal(t, entity.OrderCancelled, r.orders[orderID].Status)
	assert.NotNil(t, findOutbox(r.outbox, entity.AggregateOrder, EventOrderCancelled))
	assert.NotNil(t, findOutbox(r.outbox, entity.AggregateSaga, EventSagaFailed))
}

func TestHandleCompensationRequired_SupervisorTimeoutFailsOrder(t *testing.T) {
	t.Parallel()

	orderID := uuid.Must(uuid.NewV4())
	r := newFakeRepo()
	r.orders[orderID] = &entity.Order{ID: orderID, Status: entity.OrderPending}

	h := newTestHandlers(r, &fakeGateway{})
	env, err := NewEnvelope(orderID, uuid.Must(uuid.NewV4()), uuid.NullUUID{}, CompensationRequiredPayload{
		OrderID: orderID, Step: "supervisor.timeout", Reason: "no progress since 2026-08-01T00:00:00Z",
	})
	require.NoError(t, err)

	require.NoError(t, h.HandleCompensationRequired(context.Background(), env))

	assert.Equal(t, entity.OrderFailed, r.orders[orderID].Status)
	assert.NotNil(t, findOutbox(r.outbox, entity.AggregateOrder, EventOrderFailed))
	assert.NotNil(t, findOutbox(r.outbox, entity.AggregateSaga, EventSagaFailed))
	assert.Nil(t, findOutbox(r.outbox, entity.AggregateOrder, EventOrderCancelled))
}

func TestHandleCompensationRequired_RefundsChargedOrder(t *testing.T) {
	t.Parallel()

	orderID := uuid.Must(uuid.NewV4())
	r := newFakeRepo()
	r.orders[orderID] = &entity.Order{ID: orderID, Status: entity.OrderConfirmed, PaymentID: "pay-42"}

	g := &fakeGateway{}
	h := newTestHandlers(r, g)
	env, err := NewEnvelope(orderID, uuid.Must(uuid.NewV4()), uuid.NullUUID{}, CompensationRequiredPayload{
		OrderID: orderID, Step: "supervisor.timeout", Reason: "no progress",
	})
	require.NoError(t, err)

	require.NoError(t, h.HandleCompensationRequired(context.Background(), env))

	assert.Equal(t, []string{"pay-42"}, g.refunds)
	assert.Equal(t, entity.OrderFailed, r.orders[orderID].Status)
}

func TestHandleCompensationRequired_NoChargeNoRefund(t *testing.T) {
	t.Parallel()

	orderID := uuid.Must(uuid.NewV4())
	r := newFakeRepo()
	r.orders[orderID] = &entity.Order{ID: orderID, Status: entity.OrderPending}

	g := &fakeGateway{}
	h := newTestHandlers(r, g)
	env, err := NewEnvelope(orderID, uuid.Must(uuid.NewV4()), uuid.NullUUID{}, CompensationRequiredPayload{
		OrderID: orderID, Step: "reservation.expired", Reason: "stock reservation expired",
	})
	require.NoError(t, err)

	require.NoError(t, h.HandleCompensationRequired(context.Background(), env))

	assert.Empty(t, g.refunds)
	assert.Equal(t, entity.OrderCancelled, r.orders[orderID].Status)
}

func TestHandleCompensationRequired_RefundFaultAborts(t *testing.T) {
	t.Parallel()

	orderID := uuid.Must(uuid.NewV4())
	r := newFakeRepo()
	r.orders[orderID] = &entity.Order{ID: orderID, Status: entity.OrderConfirmed, PaymentID: "pay-42"}

	boom := errors.New("gateway timeout")
	g := &fakeGateway{refundErr: boom}
	h := newTestHandlers(r, g)
	env, err := NewEnvelope(orderID, uuid.Must(uuid.NewV4()), uuid.NullUUID{}, CompensationRequiredPayload{
		OrderID: orderID, Step: "reservation.expired", Reason: "stock reservation expired",
	})
	require.NoError(t, err)

	// the error surfaces so the delivery is retried with the charge intact
	assert.ErrorIs(t, h.HandleCompensationRequired(context.Background(), env), boom)
	assert.Equal(t, entity.OrderConfirmed, r.orders[orderID].Status)
	assert.Empty(t, r.outbox)
}

func TestHandleCompensationRequired_TolerantOfTerminalOrder(t *testing.T) {
	t.Parallel()

	orderID := uuid.Must(uuid.NewV4())
	productID := uuid.Must(uuid.NewV4())

	r := newFakeRepo()
	r.orders[orderID] = &entity.Order{ID: orderID, Status: entity.OrderFailed}
	r.reservations = []entity.StockReservation{{
		ReservationID: uuid.Must(uuid.NewV4()),
		OrderID:       orderID,
		ProductID:     productID,
		Quantity:      1,
		Status:        entity.ReservationActive,
	}}

	h := newTestHandlers(r, &fakeGateway{})
	env, err := NewEnvelope(orderID, uuid.Must(uuid.NewV4()), uuid.NullUUID{}, CompensationRequiredPayload{
		OrderID: orderID, Step: "reservation.expired", Reason: "reservation expired",
	})
	require.NoError(t, err)

	require.NoError(t, h.HandleCompensationRequired(context.Background(), env))

	// the hold release still happens even though the order was terminal
	assert.Equal(t, entity.ReservationReleased, r.reservations[0].Status)
	assert.Equal(t, entity.OrderFailed, r.orders[orderID].Status)
	assert.NotNil(t, findOutbox(r.outbox, entity.AggregateOrder, EventOrderCancelled))
}

func TestHandleOrderDelivered_CompletesSaga(t *testing.T) {
	t.Parallel()

	orderID := uuid.Must(uuid.NewV4())
	r := newFakeRepo()
	r.orders[orderID] = &entity.Order{ID: orderID, Status: entity.OrderConfirmed}

	h := newTestHandlers(r, &fakeGateway{})
	env, err := NewEnvelope(orderID, uuid.Must(uuid.NewV4()), uuid.NullUUID{}, OrderDeliveredPayload{
		OrderID: orderID, DeliveredAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	require.NoError(t, h.HandleOrderDelivered(context.Background(), env))

	assert.Equal(t, orderID, r.deliveredFor)
	assert.Equal(t, entity.OrderCompleted, r.orders[orderID].Status)
	require.Len(t, r.advances, 1)
	assert.Equal(t, entity.SagaCompleted, r.advances[0].status)
	assert.NotNil(t, findOutbox(r.outbox, entity.AggregateSaga, EventSagaCompleted))
}

func TestDispatch_DuplicateDeliverySkipsHandler(t *testing.T) {
	t.Parallel()

	r := newFakeRepo()
	h := newTestHandlers(r, &fakeGateway{})

	env, err := NewEnvelope(uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4()), uuid.NullUUID{},
		SagaStartedPayload{OrderID: uuid.Must(uuid.NewV4())})
	require.NoError(t, err)

	var handled int
	fn := func(ctx context.Context, env *Envelope) error {
		handled++
		return nil
	}

	dup, err := h.Dispatch(context.Background(), "commerce.order.created.v1", env, fn)
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Equal(t, 1, handled)

	dup, err = h.Dispatch(context.Background(), "commerce.order.created.v1", env, fn)
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, 1, handled, "a duplicate must not re-run the handler")
}

func TestDispatch_NilHandlerAcknowledges(t *testing.T) {
	t.Parallel()

	r := newFakeRepo()
	h := newTestHandlers(r, &fakeGateway{})

	env, err := NewEnvelope(uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4()), uuid.NullUUID{},
		SagaStartedPayload{OrderID: uuid.Must(uuid.NewV4())})
	require.NoError(t, err)

	dup, err := h.Dispatch(context.Background(), "commerce.saga.started.v1", env, nil)
	require.NoError(t, err)
	assert.False(t, dup)
	assert.True(t, r.processed[env.EventID])
}
