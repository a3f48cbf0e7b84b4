package application

import (
	"context"
	"fmt"

	"fulfillment/internal/application/common"
	"fulfillment/internal/application/repo"
	"fulfillment/internal/application/saga"
	"fulfillment/internal/application/service"
	use_cases "fulfillment/internal/application/use-cases"
	"fulfillment/internal/controllers/cron"
	"fulfillment/internal/controllers/handler"
	"fulfillment/internal/controllers/listener"
	"fulfillment/internal/transport/payment"
	"fulfillment/internal/transport/producer"
	"fulfillment/pkg/broker"
	"fulfillment/pkg/circuitbreaker"
	"fulfillment/pkg/config"
	"fulfillment/pkg/db"
	"fulfillment/pkg/httpclient"
	"fulfillment/pkg/metrics"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type App struct {
	ctx            context.Context
	conf           *config.Config
	logger         *zap.SugaredLogger
	postgres       *db.Postgres
	httpServer     *fiber.App
	kafka          *broker.KafkaBroker
	cronController *cron.Controller
	breakers       *circuitbreaker.Registry
}

func NewApp(
	ctx context.Context,
	conf *config.Config,
	logger *zap.SugaredLogger,
	postgres *db.Postgres,
	httpServer *fiber.App,
	kafkaBroker *broker.KafkaBroker,
	m *metrics.Metrics) *App {
	logger.Infof("starting fulfillment service version %s", common.Version)

	go func() {
		<-ctx.Done()
		logger.Info("closing consumer group")
		kafkaBroker.ConsumerGroup.Close()
		logger.Info("closing consumer group: done")
	}()

	store := repo.NewRepo(postgres, logger)
	tx := repo.NewTransactions(store, logger)
	kafkaProducer := producer.NewProducer(kafkaBroker, logger, conf.Broker.Kafka.MaxAttempts, m)

	// the registry is the single owner of every breaker in the process
	breakers := circuitbreaker.NewRegistry(circuitbreaker.Config{
		Threshold:        conf.Breaker.Threshold,
		ResetTimeout:     conf.Breaker.ResetTimeout,
		MonitoringWindow: conf.Breaker.MonitoringWindow,
	}, logger, m)

	httpClient := httpclient.NewRetryClient(httpclient.NewClient(conf.HTTPClient), conf.HTTPClient.MaxRetries, logger)
	gateway := payment.NewHTTPGateway(httpClient, conf.Payment.GatewayURL, logger)

	srv := service.NewService(store, tx, kafkaProducer, logger, conf, m)
	handlers := saga.NewHandlers(store, tx, gateway, breakers, conf, logger, m)
	uc := use_cases.NewUseCase(srv, handlers, logger, conf, m)
	h := handler.NewOrderHandler(uc, logger)
	r := handler.NewRouter(h, httpServer, conf, logger)

	cronController := cron.NewController(ctx, logger)
	if err := cronController.RegisterReaperJob(uc, conf.Reservation); err != nil {
		logger.Fatalf("register cron job failed: %v", err)
	}
	if err := cronController.RegisterSupervisorJob(uc, conf.Saga); err != nil {
		logger.Fatalf("register cron job failed: %v", err)
	}
	cronController.Start()

	go func() {
		m.Go.InternalGoroutines.WithLabelValues("relay").Inc()
		defer m.Go.InternalGoroutines.WithLabelValues("relay").Dec()
		uc.RunRelay(ctx)
	}()

	r.RegisterRouter()

	app := &App{
		ctx:            ctx,
		conf:           conf,
		logger:         logger,
		postgres:       postgres,
		httpServer:     httpServer,
		kafka:          kafkaBroker,
		cronController: cronController,
		breakers:       breakers,
	}

	go app.runConsumer(ctx, logger, uc, kafkaBroker, m)

	return app
}

func (a *App) Run() error {
	return a.httpServer.Listen(fmt.Sprintf(":%s", a.conf.Server.Port))
}

func (a *App) Shutdown() error {
	if a.cronController != nil {
		a.cronController.Stop()
	}
	return a.httpServer.Shutdown()
}

func (a *App) runConsumer(ctx context.Context, logger *zap.SugaredLogger, usecase use_cases.UseCaser,
	kafkaBroker *broker.KafkaBroker, m *metrics.Metrics) {
	topics := saga.Subjects(kafkaBroker.SubjectPrefix)
	logger.Infof("starting consumer for %d topics", len(topics))

	m.Go.InternalGoroutines.WithLabelValues("consumer").Inc()
	defer m.Go.InternalGoroutines.WithLabelValues("consumer").Dec()

	kafkaBrokerConsumer := listener.NewKafkaBrokerConsumer(usecase, logger, m)

	for {
		logger.Info("joining consumer group...")
		err := kafkaBroker.ConsumerGroup.Consume(ctx, topics, kafkaBrokerConsumer)
		if err != nil {
			logger.Errorf("consumer error: %v", err)
		}
		if ctx.Err() != nil {
			logger.Info("consumer stopped by context")
			return
		}
	}
}
