package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fulfillment/internal/application/entity"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
)

func (r *RepoImpl) InsertSagaState(ctx context.Context, s *entity.SagaState) error {
	r.logger.Debugf("[saga: %s] start inserting into DB", s.SagaID)

	_, err := r.db.Exec(ctx, insertSagaState, s.SagaID, s.OrderID, s.Status, s.CurrentStep)
	if err != nil {
		r.logger.Errorf("[saga: %s] error inserting into DB: %v", s.SagaID, err)
		return fmt.Errorf("insert saga state: %w", err)
	}
	return nil
}

// AdvanceSaga moves a non-terminal saga and refreshes its progress clock. The
// returned bool reports whether a row actually moved; false means the saga is
// already terminal and the caller should stop.
func (r *RepoImpl) AdvanceSaga(ctx context.Context, sagaID uuid.UUID, status entity.SagaStatus, step, lastError string) (bool, error) {
	r.logger.Debugf("[saga: %s] start advancing to %s (%s)", sagaID, status, step)

	result, err := r.db.Exec(ctx, advanceSaga, sagaID, status, step, lastError)
	if err != nil {
		r.logger.Errorf("[saga: %s] error advancing: %v", sagaID, err)
		return false, fmt.Errorf("advance saga: %w", err)
	}
	if result.RowsAffected() == 0 {
		r.logger.Warnf("[saga: %s] not advanced: missing or terminal", sagaID)
		return false, nil
	}
	r.logger.Debugf("[saga: %s] advanced to %s", sagaID, status)
	return true, nil
}

func (r *RepoImpl) StalledSagas(ctx context.Context, olderThan time.Time, limit int) ([]entity.SagaState, error) {
	rows, err := r.db.Query(ctx, stalledSagas, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("get stalled sagas: %w", err)
	}
	defer rows.Close()

	var res []entity.SagaState
	for rows.Next() {
		var s entity.SagaState
		if err := rows.Scan(
			&s.SagaID, &s.OrderID, &s.Status, &s.CurrentStep,
			&s.LastError, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan stalled saga: %w", err)
		}
		res = append(res, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stalled rows err: %w", err)
	}
	return res, nil
}

func (r *RepoImpl) SagaByOrder(ctx context.Context, orderID uuid.UUID) (*entity.SagaState, error) {
	var s entity.SagaState
	err := r.db.QueryRow(ctx, getSagaByOrder, orderID).Scan(
		&s.SagaID, &s.OrderID, &s.Status, &s.CurrentStep,
		&s.LastError, &s.CreatedAt, &s.UpdatedAt,
	)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("get saga by order: %w", err)
	}
	return &s, nil
}

// MarkEventProcessed records the event in the inbox. false means a previous
// delivery of the same event already committed its effects and the handler
// must skip its work.
func (r *RepoImpl) MarkEventProcessed(ctx context.Context, eventID uuid.UUID, topic string) (bool, error) {
	result, err := r.db.Exec(ctx, markEventProcessed, eventID, topic)
	if err != nil {
		return false, fmt.Errorf("mark event processed: %w", err)
	}
	return result.RowsAffected() > 0, nil
}
