package use_cases

import (
	"context"

	"fulfillment/internal/application/entity"
	"fulfillment/internal/application/saga"
	"fulfillment/internal/application/service"
	"fulfillment/pkg/config"
	"fulfillment/pkg/metrics"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

type UseCaser interface {
	CreateOrder(ctx context.Context, req entity.CreateOrderRequest) (*entity.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*entity.Order, error)
	CancelOrder(ctx context.Context, id uuid.UUID, reason string) error
	GetSagaByOrder(ctx context.Context, orderID uuid.UUID) (*entity.SagaState, error)

	RunRelay(ctx context.Context)
	ReapReservations(ctx context.Context)
	SuperviseSagas(ctx context.Context)
	ConsumeMessage(ctx context.Context, topic string, msg []byte) error

	HealthCheck(ctx context.Context) (dbHealthy bool, kafkaHealthy bool, err error)
}

type UseCase struct {
	service  service.Service
	handlers *saga.Handlers
	routes   map[string]saga.HandlerFunc
	logger   *zap.SugaredLogger
	conf     *config.Config
	m        *metrics.Metrics
}

func NewUseCase(service service.Service, handlers *saga.Handlers, logger *zap.SugaredLogger,
	conf *config.Config, m *metrics.Metrics) *UseCase {
	return &UseCase{
		service:  service,
		handlers: handlers,
		routes:   handlers.Routes(conf.Broker.Kafka.SubjectPrefix),
		logger:   logger,
		conf:     conf,
		m:        m,
	}
}

func (u *UseCase) HealthCheck(ctx context.Context) (dbHealthy bool, kafkaHealthy bool, err error) {
	return u.service.HealthCheck(ctx)
}

func (u *UseCase) CreateOrder(ctx context.Context, req entity.CreateOrderRequest) (*entity.Order, error) {
	u.logger.Debugf("[order: %s] CreateOrder started", req.ID)
	return u.service.CreateOrder(ctx, &req)
}

func (u *UseCase) GetOrder(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
	u.logger.Debugf("[order: %s] GetOrder started", id)
	return u.service.GetOrder(ctx, id)
}

func (u *UseCase) CancelOrder(ctx context.Context, id uuid.UUID, reason string) error {
	u.logger.Debugf("[order: %s] CancelOrder started", id)
	return u.service.CancelOrder(ctx, id, reason)
}

func (u *UseCase) GetSagaByOrder(ctx context.Context, orderID uuid.UUID) (*entity.SagaState, error) {
	return u.service.GetSagaByOrder(ctx, orderID)
}

func (u *UseCase) RunRelay(ctx context.Context) {
	u.logger.Debug("relay started")
	u.service.RelayEventRun(ctx)
}

func (u *UseCase) ReapReservations(ctx context.Context) {
	u.service.ReapExpiredReservations(ctx)
}

func (u *UseCase) SuperviseSagas(ctx context.Context) {
	u.handlers.SuperviseStalled(ctx)
}

// ConsumeMessage decodes one broker delivery and dispatches it to the step
// handler for its topic. Duplicates are detected by event id and skipped.
func (u *UseCase) ConsumeMessage(ctx context.Context, topic string, msg []byte) error {
	env, err := saga.DecodeEnvelope(msg)
	if err != nil {
		// a malformed message never becomes parseable; drop it loudly
		u.logger.Errorf("[topic: %s] undecodable message dropped: %v", topic, err)
		return nil
	}

	fn := u.routes[topic]

	duplicate, err := u.handlers.Dispatch(ctx, topic, env, fn)
	if err != nil {
		u.logger.Errorf("[event %s] handler failed on %s: %v", env.EventID, topic, err)
		return err
	}
	if duplicate {
		u.logger.Infof("[event %s] duplicate delivery on %s skipped", env.EventID, topic)
		if u.m != nil {
			u.m.Kafka.ConsumerDuplicatesTotal.WithLabelValues(topic).Inc()
		}
	}
	return nil
}
