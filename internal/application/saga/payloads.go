package saga

import (
	"time"

	"fulfillment/internal/application/entity"

	"github.com/gofrs/uuid"
)

type OrderCreatedPayload struct {
	OrderID      uuid.UUID          `json:"orderId"`
	CustomerID   uuid.UUID          `json:"customerId"`
	Items        []entity.OrderItem `json:"items"`
	TotalAmount  string             `json:"totalAmount"`
	PickupZone   string             `json:"pickupZone"`
	DeliveryZone string             `json:"deliveryZone"`
}

type ReservedItem struct {
	ReservationID uuid.UUID `json:"reservationId"`
	ProductID     uuid.UUID `json:"productId"`
	Quantity      int       `json:"quantity"`
}

type InventoryReservedPayload struct {
	OrderID      uuid.UUID      `json:"orderId"`
	CustomerID   uuid.UUID      `json:"customerId"`
	Reservations []ReservedItem `json:"reservations"`
	TotalAmount  string         `json:"totalAmount"`
}

type InventoryFailedPayload struct {
	OrderID uuid.UUID `json:"orderId"`
	Reason  string    `json:"reason"`
}

type PaymentConfirmedPayload struct {
	OrderID   uuid.UUID `json:"orderId"`
	PaymentID string    `json:"paymentId"`
	Amount    string    `json:"amount"`
}

type PaymentFailedPayload struct {
	OrderID uuid.UUID `json:"orderId"`
	Reason  string    `json:"reason"`
}

type OrderConfirmedPayload struct {
	OrderID           uuid.UUID `json:"orderId"`
	EstimatedDelivery time.Time `json:"estimatedDelivery,omitempty"`
}

type OrderCancelledPayload struct {
	OrderID uuid.UUID `json:"orderId"`
	Reason  string    `json:"reason"`
}

type OrderFailedPayload struct {
	OrderID uuid.UUID `json:"orderId"`
	Reason  string    `json:"reason"`
}

type OrderDeliveredPayload struct {
	OrderID     uuid.UUID `json:"orderId"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

type SagaStartedPayload struct {
	OrderID uuid.UUID `json:"orderId"`
}

type SagaCompletedPayload struct {
	OrderID uuid.UUID `json:"orderId"`
}

type SagaFailedPayload struct {
	OrderID uuid.UUID `json:"orderId"`
	Reason  string    `json:"reason"`
}

type CompensationRequiredPayload struct {
	OrderID uuid.UUID `json:"orderId"`
	Step    string    `json:"step"`
	Reason  string    `json:"reason"`
}
