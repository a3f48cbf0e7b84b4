package entity

import (
	"time"

	"github.com/gofrs/uuid"
)

type SagaStatus string

const (
	SagaStarted           SagaStatus = "STARTED"
	SagaInventoryReserved SagaStatus = "INVENTORY_RESERVED"
	SagaPaymentConfirmed  SagaStatus = "PAYMENT_CONFIRMED"
	SagaCompleted         SagaStatus = "COMPLETED"
	SagaCompensating      SagaStatus = "COMPENSATING"
	SagaCancelled         SagaStatus = "CANCELLED"
	SagaFailed            SagaStatus = "FAILED"
)

func (s SagaStatus) Terminal() bool {
	return s == SagaCompleted || s == SagaCancelled || s == SagaFailed
}

// SagaState is the explicit per-saga record every handler advances. It exists
// so a stalled saga is detectable: the supervisor compensates any non-terminal
// saga whose UpdatedAt is older than the progress deadline.
type SagaState struct {
	SagaID      uuid.UUID  `db:"saga_id"`
	OrderID     uuid.UUID  `db:"order_id"`
	Status      SagaStatus `db:"status"`
	CurrentStep string     `db:"current_step"`
	LastError   string     `db:"last_error"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}
