package entity

import (
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_Terminal(t *testing.T) {
	t.Parallel()

	assert.False(t, OrderPending.Terminal())
	assert.False(t, OrderConfirmed.Terminal())
	assert.True(t, OrderCancelled.Terminal())
	assert.True(t, OrderFailed.Terminal())
	assert.True(t, OrderCompleted.Terminal())
}

func TestReservationStatus_Terminal(t *testing.T) {
	t.Parallel()

	assert.False(t, ReservationActive.Terminal())
	assert.True(t, ReservationConfirmed.Terminal())
	assert.True(t, ReservationReleased.Terminal())
	assert.True(t, ReservationExpired.Terminal())
}

func TestSagaStatus_Terminal(t *testing.T) {
	t.Parallel()

	assert.False(t, SagaStarted.Terminal())
	assert.False(t, SagaInventoryReserved.Terminal())
	assert.False(t, SagaPaymentConfirmed.Terminal())
	assert.False(t, SagaCompensating.Terminal())
	assert.True(t, SagaCompleted.Terminal())
	assert.True(t, SagaCancelled.Terminal())
	assert.True(t, SagaFailed.Terminal())
}

func TestStockReservation_Expired(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	r := StockReservation{Status: ReservationActive, ExpiresAt: now.Add(-time.Second)}
	assert.True(t, r.Expired(now))

	r.ExpiresAt = now.Add(time.Second)
	assert.False(t, r.Expired(now))

	// a terminal reservation never expires, whatever the clock says
	r = StockReservation{Status: ReservationConfirmed, ExpiresAt: now.Add(-time.Hour)}
	assert.False(t, r.Expired(now))
}

func TestOutboxEvent_Subject(t *testing.T) {
	t.Parallel()

	e := OutboxEvent{
		AggregateType: AggregateOrder,
		EventType:     "created",
		EventVersion:  1,
	}
	assert.Equal(t, "commerce.order.created.v1", e.Subject("commerce"))
	assert.Equal(t, "order.created.v1", e.Subject(""))

	e.EventVersion = 2
	assert.Equal(t, "commerce.order.created.v2", e.Subject("commerce"))
}

func TestCarrier_Serves(t *testing.T) {
	t.Parallel()

	c := Carrier{
		CarrierID: uuid.Must(uuid.NewV4()),
		Zones:     []string{"north", "center", "south"},
	}

	assert.True(t, c.Serves("north", "south"))
	assert.True(t, c.Serves("center", "center"))
	assert.False(t, c.Serves("north", "east"))
	assert.False(t, c.Serves("west", "south"))
}
