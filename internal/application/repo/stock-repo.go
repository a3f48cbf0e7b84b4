package repo

import (
	"context"
	"fmt"

	"fulfillment/internal/appers"
	"fulfillment/internal/application/entity"

	"github.com/gofrs/uuid"
)

// ReserveStock moves quantity from available to reserved. The WHERE clause
// carries the stock check, so two concurrent reservations can never both
// succeed on the last unit.
func (r *RepoImpl) ReserveStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	result, err := r.db.Exec(ctx, reserveStock, productID, quantity)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	if result.RowsAffected() == 0 {
		r.logger.Warnf("[product: %s] reserve %d: insufficient stock", productID, quantity)
		return appers.ErrInsufficientStock
	}
	return nil
}

// ConfirmStock burns the reserved quantity after payment.
func (r *RepoImpl) ConfirmStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	result, err := r.db.Exec(ctx, confirmStock, productID, quantity)
	if err != nil {
		return fmt.Errorf("confirm stock: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("confirm stock: reserved counter below %d for product %s", quantity, productID)
	}
	return nil
}

// ReleaseStock returns the reserved quantity to available.
func (r *RepoImpl) ReleaseStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	result, err := r.db.Exec(ctx, releaseStock, productID, quantity)
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("release stock: reserved counter below %d for product %s", quantity, productID)
	}
	return nil
}

func (r *RepoImpl) InsertReservation(ctx context.Context, res *entity.StockReservation) error {
	r.logger.Debugf("[reservation: %s] start inserting into DB", res.ReservationID)

	_, err := r.db.Exec(ctx, insertReservation,
		res.ReservationID, res.OrderID, res.ProductID, res.Quantity,
		res.CustomerID, res.Status, res.ExpiresAt,
	)
	if err != nil {
		r.logger.Errorf("[reservation: %s] error inserting into DB: %v", res.ReservationID, err)
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (r *RepoImpl) ReservationsByOrder(ctx context.Context, orderID uuid.UUID) ([]entity.StockReservation, error) {
	rows, err := r.db.Query(ctx, getReservationsByOrder, orderID)
	if err != nil {
		return nil, fmt.Errorf("get reservations: %w", err)
	}
	defer rows.Close()

	var res []entity.StockReservation
	for rows.Next() {
		var rv entity.StockReservation
		if err := rows.Scan(
			&rv.ReservationID, &rv.OrderID, &rv.ProductID, &rv.Quantity,
			&rv.CustomerID, &rv.Status, &rv.ExpiresAt, &rv.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		res = append(res, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reservations rows err: %w", err)
	}
	return res, nil
}

// TransitionReservation is the compare-and-swap out of ACTIVE. When the row
// was already terminalized by a concurrent actor the call reports
// ErrReservationNotActive and the caller must not touch the stock counters.
func (r *RepoImpl) TransitionReservation(ctx context.Context, id uuid.UUID, to entity.ReservationStatus) error {
	r.logger.Debugf("[reservation: %s] start transition to %s", id, to)

	result, err := r.db.Exec(ctx, transitionReservation, id, to)
	if err != nil {
		r.logger.Errorf("[reservation: %s] error transitioning: %v", id, err)
		return fmt.Errorf("transition reservation: %w", err)
	}
	if result.RowsAffected() == 0 {
		r.logger.Warnf("[reservation: %s] transition to %s lost the race", id, to)
		return appers.ErrReservationNotActive
	}
	r.logger.Debugf("[reservation: %s] transitioned to %s", id, to)
	return nil
}

func (r *RepoImpl) ExpiredReservations(ctx context.Context, limit int) ([]entity.StockReservation, error) {
	rows, err := r.db.Query(ctx, expiredReservations, limit)
	if err != nil {
		return nil, fmt.Errorf("get expired reservations: %w", err)
	}
	defer rows.Close()

	var res []entity.StockReservation
	for rows.Next() {
		var rv entity.StockReservation
		if err := rows.Scan(
			&rv.ReservationID, &rv.OrderID, &rv.ProductID, &rv.Quantity,
			&rv.CustomerID, &rv.Status, &rv.ExpiresAt, &rv.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan expired reservation: %w", err)
		}
		res = append(res, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("expired rows err: %w", err)
	}
	return res, nil
}

func (r *RepoImpl) CountActiveReservations(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, countActiveReservations).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active reservations: %w", err)
	}
	return n, nil
}
