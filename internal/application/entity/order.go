package entity

import (
	"time"

	"github.com/gofrs/uuid"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderFailed    OrderStatus = "FAILED"
	OrderCompleted OrderStatus = "COMPLETED"
)

// Terminal reports whether no further saga step may touch the order.
func (s OrderStatus) Terminal() bool {
	return s == OrderCancelled || s == OrderFailed || s == OrderCompleted
}

type OrderItem struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
	UnitPrice string    `json:"unitPrice" validate:"required,decimal2"`
}

// CreateOrderRequest is the HTTP input that starts a fulfillment saga.
type CreateOrderRequest struct {
	ID           uuid.UUID   `json:"id" validate:"required"`
	CustomerID   uuid.UUID   `json:"customerId" validate:"required"`
	Items        []OrderItem `json:"items" validate:"required,min=1,dive"`
	TotalAmount  string      `json:"totalAmount" validate:"required,decimal2"`
	PickupZone   string      `json:"pickupZone" validate:"required,min=1,max=64"`
	DeliveryZone string      `json:"deliveryZone" validate:"required,min=1,max=64"`
}

type Order struct {
	ID           uuid.UUID   `json:"id"`
	CustomerID   uuid.UUID   `json:"customerId"`
	Items        []OrderItem `json:"items"`
	TotalAmount  string      `json:"totalAmount"`
	Status       OrderStatus `json:"status"`
	PickupZone   string      `json:"pickupZone"`
	DeliveryZone string      `json:"deliveryZone"`
	PaymentID    string      `json:"paymentId,omitempty"`
	CancelReason string      `json:"cancelReason,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}
