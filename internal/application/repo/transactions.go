package repo

import (
	"context"
	"fmt"

	"fulfillment/internal/application/entity"
	"fulfillment/pkg/config"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

// Transactions groups the multi-statement units that must commit atomically.
// Every saga effect and its outbox record go through here, so a state change
// without its event (or the reverse) is impossible.
type Transactions interface {
	CreateOrder(ctx context.Context, in *entity.Order, events ...*entity.OutboxEvent) error
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetOperationsFromOutbox(ctx context.Context, c config.RelayConfig) ([]entity.OutboxEvent, error)
	MarkSent(ctx context.Context, eventID uuid.UUID) error
}

type TransactionsImpl struct {
	repo   *RepoImpl
	logger *zap.SugaredLogger
}

func NewTransactions(repo *RepoImpl, logger *zap.SugaredLogger) *TransactionsImpl {
	return &TransactionsImpl{repo: repo, logger: logger}
}

// CreateOrder persists the order with its items and the outbox records in a
// single transaction.
func (t *TransactionsImpl) CreateOrder(ctx context.Context, in *entity.Order, events ...*entity.OutboxEvent) error {

	if len(events) == 0 {
		t.logger.Warnf("[ID %s] no outbox events for order creation", in.ID)
	}

	return t.repo.db.WithinTransaction(ctx, func(ctx context.Context) error {
		inserted, err := t.repo.CreateOrder(ctx, in)
		if err != nil {
			t.logger.Errorf("[ID %s] insert order failed: %v", in.ID, err)
			return err
		}
		if !inserted {
			t.logger.Infof("[ID %s] idempotent hit: order already exists", in.ID)
			return nil
		}

		for _, evt := range events {
			if err = t.repo.InsertOutbox(ctx, evt); err != nil {
				t.logger.Errorf("[ID %s] insert outbox failed: %v", in.ID, err)
				return err
			}
		}
		return nil
	})
}

// InTx runs fn inside one transaction. Saga handlers use it to commit the
// inbox mark, their effects and the follow-up outbox records together.
func (t *TransactionsImpl) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return t.repo.db.WithinTransaction(ctx, fn)
}

func (t *TransactionsImpl) GetOperationsFromOutbox(ctx context.Context, c config.RelayConfig) ([]entity.OutboxEvent, error) {
	var events []entity.OutboxEvent
	err := t.repo.db.WithinTransaction(ctx, func(txCtx context.Context) error {
		var err error
		events, err = t.repo.ReserveOutboxBatch(txCtx, c.Lease, c.BatchSize, c.MaxAttempts)
		return err
	})
	if err != nil {
		t.logger.Errorw("reserve outbox batch failed", "err", err)
		return nil, err
	}
	return events, nil
}

func (t *TransactionsImpl) MarkSent(ctx context.Context, eventID uuid.UUID) error {

	err := t.repo.db.WithinTransaction(ctx, func(ctx context.Context) error {
		t.logger.Infof("[ID %s] start transaction to mark event as sent", eventID)
		result, err := t.repo.db.Exec(ctx, markSentSQL, eventID, entity.OutboxSent)
		if err != nil {
			return fmt.Errorf("outbox mark sent: %w", err)
		}
		if result.RowsAffected() == 0 {
			// already SENT from a previous relay pass
			t.logger.Infof("[ID %s] outbox already marked sent", eventID)
		}

		return nil
	})

	if err != nil {
		return err
	}

	return nil
}
