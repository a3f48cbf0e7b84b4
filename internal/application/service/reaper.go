package service

import (
	"context"
	"errors"

	"fulfillment/internal/appers"
	"fulfillment/internal/application/entity"
	"fulfillment/internal/application/saga"

	"github.com/gofrs/uuid"
)

// ReapExpiredReservations terminalizes ACTIVE reservations past their TTL and
// returns their stock. Each reservation is handled in its own transaction so
// one poisoned row cannot block the batch. The transition is a CAS: when a
// concurrent confirmation wins, the reaper walks away without touching stock.
func (s *ServiceImpl) ReapExpiredReservations(ctx context.Context) {
	expired, err := s.repo.ExpiredReservations(ctx, s.cfg.Reservation.ReaperBatch)
	if err != nil {
		s.logger.Errorw("get expired reservations failed", "err", err)
		return
	}
	if len(expired) == 0 {
		s.refreshActiveGauge(ctx)
		return
	}

	s.logger.Infof("reaper pass: %d expired reservations", len(expired))

	reaped := 0
	for _, res := range expired {
		if err := s.reapOne(ctx, res); err != nil {
			if errors.Is(err, appers.ErrReservationNotActive) {
				s.logger.Infof("[reservation: %s] already terminal, skipping", res.ReservationID)
				continue
			}
			s.logger.Errorf("[reservation: %s] reap failed: %v", res.ReservationID, err)
			continue
		}
		reaped++
	}

	if s.m != nil && reaped > 0 {
		s.m.Reservation.ReapedTotal.Add(float64(reaped))
		s.m.Reservation.TransitionsTotal.WithLabelValues("expired").Add(float64(reaped))
	}
	s.refreshActiveGauge(ctx)
}

func (s *ServiceImpl) reapOne(ctx context.Context, res entity.StockReservation) error {
	return s.transactions.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.TransitionReservation(ctx, res.ReservationID, entity.ReservationExpired); err != nil {
			return err
		}
		if err := s.repo.ReleaseStock(ctx, res.ProductID, res.Quantity); err != nil {
			return err
		}

		// the saga can no longer complete: ask for compensation of whatever
		// else already happened for this order
		st, err := s.repo.SagaByOrder(ctx, res.OrderID)
		if err != nil {
			return err
		}
		sagaID := uuid.UUID{}
		if st != nil {
			sagaID = st.SagaID
		}

		env, err := saga.NewEnvelope(res.OrderID, sagaID, uuid.NullUUID{}, saga.CompensationRequiredPayload{
			OrderID: res.OrderID,
			Step:    "reservation.expired",
			Reason:  "stock reservation expired",
		})
		if err != nil {
			return err
		}
		evt, err := env.Outbox(entity.AggregateSaga, saga.EventSagaCompensationRequired)
		if err != nil {
			return err
		}
		return s.repo.InsertOutbox(ctx, evt)
	})
}

func (s *ServiceImpl) refreshActiveGauge(ctx context.Context) {
	if s.m == nil {
		return
	}
	if n, err := s.repo.CountActiveReservations(ctx); err == nil {
		s.m.Reservation.ActiveGauge.Set(float64(n))
	}
}
