package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fulfillment/internal/appers"
	"fulfillment/internal/application/common"
	"fulfillment/internal/application/entity"
	"fulfillment/pkg/db"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"
)

type Repo interface {
	CreateOrder(ctx context.Context, o *entity.Order) (bool, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*entity.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status entity.OrderStatus, reason string) error
	SetOrderPayment(ctx context.Context, id uuid.UUID, paymentID string) error
	CancelPendingOrder(ctx context.Context, id uuid.UUID, reason string) error

	ReserveStock(ctx context.Context, productID uuid.UUID, quantity int) error
	ConfirmStock(ctx context.Context, productID uuid.UUID, quantity int) error
	ReleaseStock(ctx context.Context, productID uuid.UUID, quantity int) error
	InsertReservation(ctx context.Context, res *entity.StockReservation) error
	ReservationsByOrder(ctx context.Context, orderID uuid.UUID) ([]entity.StockReservation, error)
	TransitionReservation(ctx context.Context, id uuid.UUID, to entity.ReservationStatus) error
	ExpiredReservations(ctx context.Context, limit int) ([]entity.StockReservation, error)
	CountActiveReservations(ctx context.Context) (int64, error)

	BestCarrier(ctx context.Context, pickupZone, deliveryZone string) (*entity.Carrier, error)
	InsertShipment(ctx context.Context, s *entity.Shipment) (bool, error)
	AssignShipment(ctx context.Context, shipmentID, carrierID uuid.UUID, estimatedDelivery time.Time) error
	MarkShipmentDelivered(ctx context.Context, orderID uuid.UUID) error
	ShipmentByOrder(ctx context.Context, orderID uuid.UUID) (*entity.Shipment, error)

	InsertSagaState(ctx context.Context, s *entity.SagaState) error
	AdvanceSaga(ctx context.Context, sagaID uuid.UUID, status entity.SagaStatus, step, lastError string) (bool, error)
	StalledSagas(ctx context.Context, olderThan time.Time, limit int) ([]entity.SagaState, error)
	SagaByOrder(ctx context.Context, orderID uuid.UUID) (*entity.SagaState, error)

	MarkEventProcessed(ctx context.Context, eventID uuid.UUID, topic string) (bool, error)

	InsertOutbox(ctx context.Context, e *entity.OutboxEvent) error
	ReserveOutboxBatch(ctx context.Context, lease time.Duration, limit, maxAttempts int) ([]entity.OutboxEvent, error)
	MarkFailedWithBackoff(ctx context.Context, eventID uuid.UUID, nextAttemptAt time.Time) error
	MarkGaveUp(ctx context.Context, eventID uuid.UUID) error

	HealthCheck(ctx context.Context) error
}

type RepoImpl struct {
	db     db.DB
	logger *zap.SugaredLogger
}

func NewRepo(db db.DB, logger *zap.SugaredLogger) *RepoImpl {
	return &RepoImpl{db: db, logger: logger}
}

func (r *RepoImpl) HealthCheck(ctx context.Context) error {
	var result int
	err := r.db.QueryRow(ctx, "SELECT 1").Scan(&result)
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

func (r *RepoImpl) CreateOrder(ctx context.Context, o *entity.Order) (bool, error) {
	r.logger.Debugf("[order: %s] start inserting into DB", o.ID)

	total, err := common.NumericFromString2Strict(o.TotalAmount)
	if err != nil {
		return false, fmt.Errorf("total amount: %w", err)
	}

	var insertedID uuid.UUID
	err = r.db.QueryRow(ctx, createOrder,
		o.ID, o.CustomerID, total, o.Status, o.PickupZone, o.DeliveryZone).Scan(&insertedID)

	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		// ON CONFLICT DO NOTHING returned 0 rows, order already exists
		r.logger.Warnf("[order: %s] inserting order: already exists (conflict)", o.ID)
		return false, appers.ErrOrderAlreadyExists
	case isDuplicateKeyError(err):
		r.logger.Warnf("[order: %s] inserting order: already exists (duplicate key)", o.ID)
		return false, appers.ErrOrderAlreadyExists
	default:
		r.logger.Errorf("[order: %s] error inserting into DB: %v", o.ID, err)
		return false, fmt.Errorf("error inserting into DB: %w", err)
	}

	for _, item := range o.Items {
		price, err := common.NumericFromString2Strict(item.UnitPrice)
		if err != nil {
			return false, fmt.Errorf("unit price for product %s: %w", item.ProductID, err)
		}
		if _, err := r.db.Exec(ctx, createOrderItem, o.ID, item.ProductID, item.Quantity, price); err != nil {
			r.logger.Errorf("[order: %s] error inserting item %s: %v", o.ID, item.ProductID, err)
			return false, fmt.Errorf("insert order item: %w", err)
		}
	}

	r.logger.Debugf("[order: %s] inserted into DB successfully", o.ID)
	return true, nil
}

func (r *RepoImpl) GetOrder(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
	r.logger.Debugf("[order: %s] start getting from DB", id)

	var o entity.Order
	var total pgtype.Numeric
	err := r.db.QueryRow(ctx, getOrder, id).Scan(
		&o.ID, &o.CustomerID, &total, &o.Status, &o.PickupZone, &o.DeliveryZone,
		&o.PaymentID, &o.CancelReason, &o.CreatedAt, &o.UpdatedAt,
	)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, appers.ErrOrderNotFound
	case err != nil:
		r.logger.Errorf("[order: %s] error getting from DB: %v", id, err)
		return nil, fmt.Errorf("error getting from DB: %w", err)
	}

	if o.TotalAmount, err = common.NumericToString(total); err != nil {
		return nil, fmt.Errorf("total amount: %w", err)
	}

	rows, err := r.db.Query(ctx, getOrderItems, id)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item entity.OrderItem
		var price pgtype.Numeric
		if err := rows.Scan(&item.ProductID, &item.Quantity, &price); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if item.UnitPrice, err = common.NumericToString(price); err != nil {
			return nil, fmt.Errorf("unit price: %w", err)
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order items rows err: %w", err)
	}

	r.logger.Debugf("[order: %s] got from DB successfully", id)
	return &o, nil
}

// UpdateOrderStatus is conditional: a terminal order is never moved again.
func (r *RepoImpl) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status entity.OrderStatus, reason string) error {
	r.logger.Debugf("[order: %s] start updating status to %s", id, status)

	result, err := r.db.Exec(ctx, updateOrderStatus, id, status, reason)
	if err != nil {
		r.logger.Errorf("[order: %s] error updating status: %v", id, err)
		return fmt.Errorf("error updating order status: %w", err)
	}
	if result.RowsAffected() == 0 {
		r.logger.Warnf("[order: %s] no rows updated: missing or terminal", id)
		return appers.ErrOrderNotCancellable
	}
	r.logger.Debugf("[order: %s] status updated to %s", id, status)
	return nil
}

// SetOrderPayment records the gateway charge id so a later compensation can
// refund it.
func (r *RepoImpl) SetOrderPayment(ctx context.Context, id uuid.UUID, paymentID string) error {
	if _, err := r.db.Exec(ctx, setOrderPayment, id, paymentID); err != nil {
		r.logger.Errorf("[order: %s] error setting payment id: %v", id, err)
		return fmt.Errorf("error setting payment id: %w", err)
	}
	return nil
}

// CancelPendingOrder moves a PENDING order to CANCELLED. An order past that
// point is not the client's to cancel anymore.
func (r *RepoImpl) CancelPendingOrder(ctx context.Context, id uuid.UUID, reason string) error {
	r.logger.Debugf("[order: %s] start cancelling pending order", id)

	result, err := r.db.Exec(ctx, cancelPendingOrder, id, reason)
	if err != nil {
		r.logger.Errorf("[order: %s] error cancelling order: %v", id, err)
		return fmt.Errorf("error cancelling order: %w", err)
	}
	if result.RowsAffected() == 0 {
		r.logger.Warnf("[order: %s] no rows updated: missing or past PENDING", id)
		return appers.ErrOrderNotCancellable
	}
	r.logger.Debugf("[order: %s] cancelled", id)
	return nil
}

// isDuplicateKeyError matches SQLSTATE 23505
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
