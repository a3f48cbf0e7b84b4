package entity

import (
	"time"

	"github.com/gofrs/uuid"
)

type ShipmentStatus string

const (
	ShipmentPending   ShipmentStatus = "PENDING"
	ShipmentAssigned  ShipmentStatus = "ASSIGNED"
	ShipmentDelivered ShipmentStatus = "DELIVERED"
)

// Shipment is created once the order is confirmed. A failed carrier
// assignment leaves it PENDING for a manual or retried assignment; the order
// stays confirmed.
type Shipment struct {
	ShipmentID        uuid.UUID      `db:"shipment_id"`
	OrderID           uuid.UUID      `db:"order_id"`
	CarrierID         uuid.NullUUID  `db:"carrier_id"`
	Status            ShipmentStatus `db:"status"`
	PickupZone        string         `db:"pickup_zone"`
	DeliveryZone      string         `db:"delivery_zone"`
	EstimatedDelivery time.Time      `db:"estimated_delivery"`
	CreatedAt         time.Time      `db:"created_at"`
}

// Carrier is a transportista that can be assigned to shipments.
type Carrier struct {
	CarrierID uuid.UUID `db:"carrier_id"`
	Name      string    `db:"name"`
	Rating    float64   `db:"rating"`
	Active    bool      `db:"active"`
	Zones     []string  `db:"zones"`
}

// Serves reports whether the carrier covers both ends of the route.
func (c *Carrier) Serves(pickup, delivery string) bool {
	var hasPickup, hasDelivery bool
	for _, z := range c.Zones {
		if z == pickup {
			hasPickup = true
		}
		if z == delivery {
			hasDelivery = true
		}
	}
	return hasPickup && hasDelivery
}
