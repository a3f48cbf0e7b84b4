package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fulfillment/internal/appers"
	"fulfillment/internal/application/entity"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
)

// BestCarrier returns the highest-rated active carrier whose zone list covers
// both ends of the route. Ties break arbitrarily.
func (r *RepoImpl) BestCarrier(ctx context.Context, pickupZone, deliveryZone string) (*entity.Carrier, error) {
	r.logger.Debugf("[route: %s -> %s] start carrier lookup", pickupZone, deliveryZone)

	var c entity.Carrier
	err := r.db.QueryRow(ctx, bestCarrierForRoute, pickupZone, deliveryZone).Scan(
		&c.CarrierID, &c.Name, &c.Rating, &c.Active, &c.Zones,
	)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		r.logger.Warnf("[route: %s -> %s] no active carrier serves the route", pickupZone, deliveryZone)
		return nil, appers.ErrCarrierNotFound
	case err != nil:
		r.logger.Errorf("[route: %s -> %s] error getting carrier: %v", pickupZone, deliveryZone, err)
		return nil, fmt.Errorf("get best carrier: %w", err)
	}
	return &c, nil
}

// InsertShipment is idempotent per order: a redelivered confirmation event
// finds the existing row and reports inserted = false.
func (r *RepoImpl) InsertShipment(ctx context.Context, s *entity.Shipment) (bool, error) {
	r.logger.Debugf("[shipment: %s] start inserting into DB", s.ShipmentID)

	var insertedID uuid.UUID
	err := r.db.QueryRow(ctx, insertShipment,
		s.ShipmentID, s.OrderID, s.Status, s.PickupZone, s.DeliveryZone).Scan(&insertedID)

	switch {
	case err == nil:
		r.logger.Debugf("[shipment: %s] inserted into DB successfully", s.ShipmentID)
		return true, nil
	case errors.Is(err, pgx.ErrNoRows):
		r.logger.Infof("[order: %s] shipment already exists", s.OrderID)
		return false, nil
	case isDuplicateKeyError(err):
		r.logger.Infof("[order: %s] shipment already exists (duplicate key)", s.OrderID)
		return false, nil
	default:
		r.logger.Errorf("[shipment: %s] error inserting into DB: %v", s.ShipmentID, err)
		return false, fmt.Errorf("insert shipment: %w", err)
	}
}

// AssignShipment is conditional on PENDING, so a retried assignment cannot
// overwrite a carrier that is already on the hook.
func (r *RepoImpl) AssignShipment(ctx context.Context, shipmentID, carrierID uuid.UUID, estimatedDelivery time.Time) error {
	result, err := r.db.Exec(ctx, assignShipment, shipmentID, carrierID, estimatedDelivery)
	if err != nil {
		r.logger.Errorf("[shipment: %s] error assigning carrier: %v", shipmentID, err)
		return fmt.Errorf("assign shipment: %w", err)
	}
	if result.RowsAffected() == 0 {
		r.logger.Warnf("[shipment: %s] not assigned: missing or already assigned", shipmentID)
		return nil
	}
	r.logger.Debugf("[shipment: %s] assigned to carrier %s", shipmentID, carrierID)
	return nil
}

func (r *RepoImpl) MarkShipmentDelivered(ctx context.Context, orderID uuid.UUID) error {
	result, err := r.db.Exec(ctx, markShipmentDelivered, orderID)
	if err != nil {
		return fmt.Errorf("mark shipment delivered: %w", err)
	}
	if result.RowsAffected() == 0 {
		r.logger.Warnf("[order: %s] no assigned shipment to mark delivered", orderID)
	}
	return nil
}

func (r *RepoImpl) ShipmentByOrder(ctx context.Context, orderID uuid.UUID) (*entity.Shipment, error) {
	var s entity.Shipment
	var estimated *time.Time
	err := r.db.QueryRow(ctx, getShipmentByOrder, orderID).Scan(
		&s.ShipmentID, &s.OrderID, &s.CarrierID, &s.Status,
		&s.PickupZone, &s.DeliveryZone, &estimated, &s.CreatedAt,
	)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("get shipment: %w", err)
	}
	if estimated != nil {
		s.EstimatedDelivery = *estimated
	}
	return &s, nil
}
