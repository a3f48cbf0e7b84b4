package listener

import (
	"context"
	"time"

	"fulfillment/internal/application/common"
	use_cases "fulfillment/internal/application/use-cases"
	"fulfillment/pkg/metrics"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// in-place retries of one message before the session is torn down
const maxConsumeAttempts = 5

type KafkaBrokerConsumer struct {
	usecase use_cases.UseCaser
	logger  *zap.SugaredLogger
	m       *metrics.Metrics

	retryBackoff time.Duration
}

func NewKafkaBrokerConsumer(usecase use_cases.UseCaser, logger *zap.SugaredLogger, m *metrics.Metrics) *KafkaBrokerConsumer {
	return &KafkaBrokerConsumer{
		logger:       logger,
		usecase:      usecase,
		m:            m,
		retryBackoff: time.Second,
	}
}

func (k *KafkaBrokerConsumer) Setup(session sarama.ConsumerGroupSession) error {
	k.logger.Info("Kafka setup success")
	if k.m != nil {
		k.m.Kafka.ConsumerRebalancesTotal.WithLabelValues("setup").Inc()
	}
	return nil
}

func (k *KafkaBrokerConsumer) Cleanup(session sarama.ConsumerGroupSession) error {
	k.logger.Info("Kafka cleanup success")
	if k.m != nil {
		k.m.Kafka.ConsumerRebalancesTotal.WithLabelValues("cleanup").Inc()
	}
	return nil
}

func (k *KafkaBrokerConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	topic := claim.Topic()

	for msg := range claim.Messages() {
		if k.m != nil {
			k.m.Kafka.ConsumerInFlight.WithLabelValues(topic).Inc()
		}
		start := time.Now()
		k.logger.Infof("Message topic:%q partition:%d offset:%d", msg.Topic, msg.Partition, msg.Offset)

		err := k.consumeWithRetry(session.Context(), topic, msg)
		if k.m != nil {
			k.m.Kafka.ConsumerMessagesTotal.WithLabelValues(topic).Inc()
			k.m.Kafka.ConsumerProcessDuration.WithLabelValues(topic).Observe(time.Since(start).Seconds())
			k.m.Kafka.ConsumerInFlight.WithLabelValues(topic).Dec()
		}
		if err != nil {
			// an offset commit is a high-watermark: marking any later message
			// would commit past this one. Exit with the offset unmarked, the
			// next session resumes here and the inbox dedups the replays.
			k.logger.Errorf("processing failed topic:%q partition:%d offset:%d err:%v",
				msg.Topic, msg.Partition, msg.Offset, err)
			return err
		}

		session.MarkMessage(msg, "")
	}

	return nil
}

// consumeWithRetry hands one message to the usecase, retrying in place so a
// transient handler failure does not cost a session teardown.
func (k *KafkaBrokerConsumer) consumeWithRetry(ctx context.Context, topic string, msg *sarama.ConsumerMessage) error {
	var lastErr error
	for attempt := 1; attempt <= maxConsumeAttempts; attempt++ {
		lastErr = k.usecase.ConsumeMessage(ctx, topic, msg.Value)
		if lastErr == nil {
			return nil
		}
		if attempt == maxConsumeAttempts {
			break
		}
		k.logger.Warnf("retrying message topic:%q partition:%d offset:%d attempt:%d err:%v",
			msg.Topic, msg.Partition, msg.Offset, attempt, lastErr)
		if err := common.SleepCtx(ctx, k.retryBackoff*time.Duration(attempt)); err != nil {
			return err
		}
	}
	return lastErr
}
