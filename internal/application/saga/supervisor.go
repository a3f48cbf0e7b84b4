package saga

import (
	"context"
	"fmt"
	"time"

	"fulfillment/internal/application/entity"

	"github.com/gofrs/uuid"
)

const supervisorBatch = 100

// SuperviseStalled compensates sagas that stopped making progress: any
// non-terminal record not touched within the progress deadline. A lost event,
// a crashed consumer or a breaker that never closed all end up here.
func (h *Handlers) SuperviseStalled(ctx context.Context) {
	deadline := time.Now().UTC().Add(-h.cfg.Saga.ProgressDeadline)

	stalled, err := h.repo.StalledSagas(ctx, deadline, supervisorBatch)
	if err != nil {
		h.logger.Errorw("get stalled sagas failed", "err", err)
		return
	}
	if len(stalled) == 0 {
		return
	}

	h.logger.Warnf("supervisor pass: %d stalled sagas", len(stalled))

	for _, st := range stalled {
		if err := h.compensateStalled(ctx, st); err != nil {
			h.logger.Errorf("[saga: %s] supervisor compensation failed: %v", st.SagaID, err)
			continue
		}
		if h.m != nil {
			h.m.Saga.StalledTotal.Inc()
		}
	}
}

func (h *Handlers) compensateStalled(ctx context.Context, st entity.SagaState) error {
	return h.tx.InTx(ctx, func(ctx context.Context) error {
		reason := fmt.Sprintf("no progress since %s (last step %s)",
			st.UpdatedAt.UTC().Format(time.RFC3339), st.CurrentStep)

		// moving to COMPENSATING refreshes the progress clock, so the next
		// pass does not pick the same saga up again before the deadline
		moved, err := h.repo.AdvanceSaga(ctx, st.SagaID, entity.SagaCompensating, "supervisor.timeout", reason)
		if err != nil {
			return err
		}
		if !moved {
			return nil
		}

		env, err := NewEnvelope(st.OrderID, st.SagaID, uuid.NullUUID{}, CompensationRequiredPayload{
			OrderID: st.OrderID,
			Step:    "supervisor.timeout",
			Reason:  reason,
		})
		if err != nil {
			return err
		}
		evt, err := env.Outbox(entity.AggregateSaga, EventSagaCompensationRequired)
		if err != nil {
			return err
		}
		return h.repo.InsertOutbox(ctx, evt)
	})
}
