package service

import (
	"context"
	"time"

	"fulfillment/internal/application/common"
	"fulfillment/internal/application/entity"
)

// RelayEventRun is the outbox publisher loop: reserve a batch under a lease,
// fan it out to workers, publish, mark SENT. A crash between publish and mark
// redelivers the event, which is why every consumer dedups on event id.
func (s *ServiceImpl) RelayEventRun(ctx context.Context) {
	cfg := s.cfg.Relay
	s.logger.Infow("relay started", "workers", cfg.Workers, "batch", cfg.BatchSize, "lease", cfg.Lease.String())

	jobs := make(chan entity.OutboxEvent, cfg.BatchSize*2)

	for i := 0; i < cfg.Workers; i++ {
		go s.worker(ctx, i, jobs)
	}

	ticker := time.NewTicker(cfg.PollPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Infow("relay stopping")
			return
		case <-ticker.C:
			events, err := s.transactions.GetOperationsFromOutbox(ctx, cfg)
			if err != nil {
				s.logger.Errorw("get operations from outbox failed", "err", err)
				continue
			}

			if s.m != nil {
				s.m.Outbox.BatchSize.Observe(float64(len(events)))
			}

			s.logger.Debugf("len jobs: %d, len events: %d", len(jobs), len(events))
			for _, e := range events {
				select {
				case jobs <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (s *ServiceImpl) worker(ctx context.Context, id int, jobs <-chan entity.OutboxEvent) {
	s.logger.Infow("worker started", "id", id)
	for {
		select {
		case <-ctx.Done():
			s.logger.Infow("worker stopping", "id", id)
			return
		case e := <-jobs:
			s.ProcessOne(ctx, id, e)
		}
	}
}

// ProcessOne relays one outbox record (exported for tests).
func (s *ServiceImpl) ProcessOne(ctx context.Context, wid int, e entity.OutboxEvent) {
	s.logger.Debugf("[event %s] relay-process started, workerID: %d", e.EventID, wid)

	if s.m != nil {
		s.m.Outbox.PendingAge.Observe(time.Since(e.CreatedAt).Seconds())
	}

	if err := s.kafkaProducer.ProduceEvent(ctx, &e); err != nil {
		s.logger.Errorf("[event %s] kafka send failed, err: %v", e.EventID, err)
		// a fresh context: the status update must land even when ctx died
		_ = s.markOutboxFailedOrGaveUp(context.Background(), &e, common.NextBackoffWithJitter(e.Attempts))

		return
	}
	s.logger.Infof("[event %s] sent to kafka", e.EventID)

	if err := s.transactions.MarkSent(ctx, e.EventID); err != nil {
		// the message is out; never resend, the lease expiry will retry the
		// mark on a later cycle and the consumer dedups either way
		s.logger.Errorf("[event %s] mark sent failed, err: %v", e.EventID, err)
		return
	}

	if s.m != nil {
		s.m.Outbox.RelayedTotal.WithLabelValues("sent").Inc()
	}
	s.logger.Infof("[event %s] relay-process completed", e.EventID)
}

func (s *ServiceImpl) markOutboxFailedOrGaveUp(ctx context.Context, e *entity.OutboxEvent, backoff time.Duration) error {
	if e.Attempts+1 >= s.cfg.Relay.MaxAttempts {
		if s.m != nil {
			s.m.Outbox.RelayedTotal.WithLabelValues("gave_up").Inc()
		}
		return s.repo.MarkGaveUp(ctx, e.EventID)
	}
	if s.m != nil {
		s.m.Outbox.RelayedTotal.WithLabelValues("failed").Inc()
	}
	return s.repo.MarkFailedWithBackoff(ctx, e.EventID, time.Now().UTC().Add(backoff))
}
