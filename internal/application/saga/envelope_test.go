package saga

import (
	"encoding/json"
	"testing"

	"fulfillment/internal/application/entity"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	t.Parallel()

	orderID := uuid.Must(uuid.NewV4())
	sagaID := uuid.Must(uuid.NewV4())
	cause := uuid.Must(uuid.NewV4())

	env, err := NewEnvelope(orderID, sagaID, uuid.NullUUID{UUID: cause, Valid: true}, OrderCreatedPayload{
		OrderID:     orderID,
		TotalAmount: "99.90",
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, env.EventID)
	assert.Equal(t, SchemaVersion, env.SchemaVersion)
	assert.Equal(t, orderID, env.AggregateID)
	assert.Equal(t, sagaID, env.SagaID)
	assert.Equal(t, cause, env.CausationID.UUID)
	assert.False(t, env.Timestamp.IsZero())

	var p OrderCreatedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "99.90", p.TotalAmount)
}

func TestDecodeEnvelope_RoundTrip(t *testing.T) {
	t.Parallel()

	env, err := NewEnvelope(uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4()), uuid.NullUUID{},
		SagaStartedPayload{OrderID: uuid.Must(uuid.NewV4())})
	require.NoError(t, err)

	data, err := json.Marshal(env)
	require.NoError(t, err)

	got, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, got.EventID)
	assert.Equal(t, env.SagaID, got.SagaID)
}

func TestDecodeEnvelope_Rejects(t *testing.T) {
	t.Parallel()

	_, err := DecodeEnvelope([]byte("not json"))
	assert.Error(t, err)

	// a decodable body without an event id is useless for dedup
	_, err = DecodeEnvelope([]byte(`{"payload":{}}`))
	assert.Error(t, err)
}

func TestEnvelope_Outbox(t *testing.T) {
	t.Parallel()

	orderID := uuid.Must(uuid.NewV4())
	env, err := NewEnvelope(orderID, uuid.Must(uuid.NewV4()), uuid.NullUUID{},
		InventoryReservedPayload{OrderID: orderID})
	require.NoError(t, err)

	evt, err := env.Outbox(entity.AggregateInventory, EventInventoryReserved)
	require.NoError(t, err)

	assert.Equal(t, env.EventID, evt.EventID, "outbox identity and dedup token must match")
	assert.Equal(t, entity.AggregateInventory, evt.AggregateType)
	assert.Equal(t, orderID, evt.AggregateID)
	assert.Equal(t, entity.OutboxNew, evt.Status)
	assert.Equal(t, "commerce.inventory.reserved.v1", evt.Subject("commerce"))

	// the stored payload is the whole envelope, decodable as delivered
	got, err := DecodeEnvelope(evt.Payload)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, got.EventID)
}

func TestSubjects(t *testing.T) {
	t.Parallel()

	subjects := Subjects("commerce")
	require.Len(t, subjects, 13)
	assert.Contains(t, subjects, "commerce.order.created.v1")
	assert.Contains(t, subjects, "commerce.payment.failed.v1")
	assert.Contains(t, subjects, "commerce.saga.compensation_required.v1")

	// no prefix drops the leading segment
	assert.Contains(t, Subjects(""), "order.created.v1")
}

func TestRoutesCoverReactiveSubjects(t *testing.T) {
	t.Parallel()

	h := &Handlers{}
	routes := h.Routes("commerce")

	for _, topic := range []string{
		"commerce.order.created.v1",
		"commerce.order.cancelled.v1",
		"commerce.order.delivered.v1",
		"commerce.inventory.reserved.v1",
		"commerce.inventory.failed.v1",
		"commerce.payment.confirmed.v1",
		"commerce.payment.failed.v1",
		"commerce.saga.compensation_required.v1",
	} {
		assert.Contains(t, routes, topic)
	}

	// bookkeeping topics are consumed without a handler
	assert.NotContains(t, routes, "commerce.saga.started.v1")
	assert.NotContains(t, routes, "commerce.order.confirmed.v1")
}
