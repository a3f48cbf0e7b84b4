package entity

import (
	"time"

	"github.com/gofrs/uuid"
)

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationReleased  ReservationStatus = "RELEASED"
	ReservationExpired   ReservationStatus = "EXPIRED"
)

// Terminal: every status except ACTIVE. Once left, ACTIVE is never re-entered.
func (s ReservationStatus) Terminal() bool {
	return s != ReservationActive
}

// StockReservation is a time-bounded hold against available stock. At most
// one reservation per (order, product); rows are terminalized, never deleted.
//
// Every transition out of ACTIVE must go through a conditional update
// (WHERE status = 'ACTIVE'), so a racing confirmation and reaper cannot both
// move the stock.
type StockReservation struct {
	ReservationID uuid.UUID         `db:"reservation_id"`
	OrderID       uuid.UUID         `db:"order_id"`
	ProductID     uuid.UUID         `db:"product_id"`
	Quantity      int               `db:"quantity"`
	CustomerID    uuid.UUID         `db:"customer_id"`
	Status        ReservationStatus `db:"status"`
	ExpiresAt     time.Time         `db:"expires_at"`
	CreatedAt     time.Time         `db:"created_at"`
}

// Expired reports whether the TTL has elapsed while still ACTIVE.
func (r *StockReservation) Expired(now time.Time) bool {
	return r.Status == ReservationActive && now.After(r.ExpiresAt)
}

// Product carries the stock counters the reservation lifecycle mutates.
type Product struct {
	ProductID uuid.UUID `db:"product_id"`
	Name      string    `db:"name"`
	Available int       `db:"available"`
	Reserved  int       `db:"reserved"`
	UpdatedAt time.Time `db:"updated_at"`
}
