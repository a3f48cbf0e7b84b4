package service

import (
	"context"
	"fmt"

	"fulfillment/internal/application/entity"
	"fulfillment/internal/application/repo"
	"fulfillment/internal/application/saga"
	"fulfillment/internal/transport/producer"
	"fulfillment/pkg/config"
	"fulfillment/pkg/metrics"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

type Service interface {
	CreateOrder(ctx context.Context, req *entity.CreateOrderRequest) (*entity.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*entity.Order, error)
	CancelOrder(ctx context.Context, id uuid.UUID, reason string) error
	GetSagaByOrder(ctx context.Context, orderID uuid.UUID) (*entity.SagaState, error)

	RelayEventRun(ctx context.Context)
	ReapExpiredReservations(ctx context.Context)

	HealthCheck(ctx context.Context) (dbHealthy bool, kafkaHealthy bool, err error)
}

type ServiceImpl struct {
	repo          repo.Repo
	transactions  repo.Transactions
	kafkaProducer producer.Producer
	logger        *zap.SugaredLogger
	cfg           *config.Config
	m             *metrics.Metrics
}

func NewService(repo repo.Repo, transactions repo.Transactions, kafkaProducer producer.Producer,
	logger *zap.SugaredLogger, cfg *config.Config, m *metrics.Metrics) *ServiceImpl {
	return &ServiceImpl{
		repo:          repo,
		transactions:  transactions,
		kafkaProducer: kafkaProducer,
		logger:        logger,
		cfg:           cfg,
		m:             m,
	}
}

func (s *ServiceImpl) HealthCheck(ctx context.Context) (dbHealthy bool, kafkaHealthy bool, err error) {
	dbErr := s.repo.HealthCheck(ctx)
	dbHealthy = dbErr == nil

	kafkaErr := s.kafkaProducer.HealthCheck(ctx)
	kafkaHealthy = kafkaErr == nil

	// degraded is still alive; only a double failure is an error
	if !dbHealthy && !kafkaHealthy {
		return dbHealthy, kafkaHealthy, fmt.Errorf("database: %v, kafka: %v", dbErr, kafkaErr)
	}

	return dbHealthy, kafkaHealthy, nil
}

// CreateOrder persists the order, opens its saga record and stages the
// order.created event, all in one transaction. The relay picks the event up
// afterwards; nothing is published inline.
func (s *ServiceImpl) CreateOrder(ctx context.Context, req *entity.CreateOrderRequest) (*entity.Order, error) {
	s.logger.Debugf("[order: %s] CreateOrder started", req.ID)

	order := &entity.Order{
		ID:           req.ID,
		CustomerID:   req.CustomerID,
		Items:        req.Items,
		TotalAmount:  req.TotalAmount,
		Status:       entity.OrderPending,
		PickupZone:   req.PickupZone,
		DeliveryZone: req.DeliveryZone,
	}

	sagaID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("new saga id: %w", err)
	}

	env, err := saga.NewEnvelope(order.ID, sagaID, uuid.NullUUID{}, saga.OrderCreatedPayload{
		OrderID:      order.ID,
		CustomerID:   order.CustomerID,
		Items:        order.Items,
		TotalAmount:  order.TotalAmount,
		PickupZone:   order.PickupZone,
		DeliveryZone: order.DeliveryZone,
	})
	if err != nil {
		return nil, err
	}
	created, err := env.Outbox(entity.AggregateOrder, saga.EventOrderCreated)
	if err != nil {
		return nil, err
	}

	startedEnv, err := saga.NewEnvelope(order.ID, sagaID,
		uuid.NullUUID{UUID: env.EventID, Valid: true}, saga.SagaStartedPayload{OrderID: order.ID})
	if err != nil {
		return nil, err
	}
	started, err := startedEnv.Outbox(entity.AggregateSaga, saga.EventSagaStarted)
	if err != nil {
		return nil, err
	}

	err = s.transactions.InTx(ctx, func(ctx context.Context) error {
		if err := s.transactions.CreateOrder(ctx, order, created, started); err != nil {
			return err
		}
		return s.repo.InsertSagaState(ctx, &entity.SagaState{
			SagaID:      sagaID,
			OrderID:     order.ID,
			Status:      entity.SagaStarted,
			CurrentStep: "order.created",
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infof("[order: %s] created, saga %s started", order.ID, sagaID)
	return order, nil
}

func (s *ServiceImpl) GetOrder(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
	s.logger.Debugf("[order: %s] GetOrder started", id)

	return s.repo.GetOrder(ctx, id)
}

// CancelOrder is the client-initiated cancellation. It only moves PENDING
// orders: once the saga charged the customer, cancellation means a refund and
// that runs through the compensation flow, not this endpoint.
func (s *ServiceImpl) CancelOrder(ctx context.Context, id uuid.UUID, reason string) error {
	s.logger.Debugf("[order: %s] CancelOrder started", id)

	return s.transactions.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.CancelPendingOrder(ctx, id, reason); err != nil {
			return err
		}

		st, err := s.repo.SagaByOrder(ctx, id)
		if err != nil {
			return err
		}

		sagaID := uuid.UUID{}
		if st != nil {
			sagaID = st.SagaID
			if _, err := s.repo.AdvanceSaga(ctx, st.SagaID, entity.SagaCancelled, "order.cancelled", reason); err != nil {
				return err
			}
		}

		env, err := saga.NewEnvelope(id, sagaID, uuid.NullUUID{}, saga.OrderCancelledPayload{
			OrderID: id,
			Reason:  reason,
		})
		if err != nil {
			return err
		}
		cancelled, err := env.Outbox(entity.AggregateOrder, saga.EventOrderCancelled)
		if err != nil {
			return err
		}
		return s.repo.InsertOutbox(ctx, cancelled)
	})
}

func (s *ServiceImpl) GetSagaByOrder(ctx context.Context, orderID uuid.UUID) (*entity.SagaState, error) {
	return s.repo.SagaByOrder(ctx, orderID)
}
