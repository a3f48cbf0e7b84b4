package cron

import (
	"context"
	"fmt"

	use_cases "fulfillment/internal/application/use-cases"
	"fulfillment/pkg/config"

	"go.uber.org/zap"
)

type Controller struct {
	scheduler *Scheduler
	logger    *zap.SugaredLogger
}

func NewController(ctx context.Context, logger *zap.SugaredLogger) *Controller {
	return &Controller{
		scheduler: NewScheduler(ctx),
		logger:    logger,
	}
}

// Specs accept both cron format ("0 16 * * *") and intervals ("@every 1m").
func (c *Controller) RegisterReaperJob(usecase use_cases.UseCaser, conf config.Reservation) error {
	spec := conf.ReaperSchedule
	if spec == "" {
		spec = "@every 1m"
		c.logger.Warnf("reaper schedule not set, defaulting to %s", spec)
	}

	entryID, err := c.scheduler.Add(spec, NewReaperJob(usecase, c.logger))
	if err != nil {
		return fmt.Errorf("register reaper job: %w", err)
	}

	c.logger.Infof("reservation reaper registered with ID: %d, schedule: %s", entryID, spec)
	return nil
}

func (c *Controller) RegisterSupervisorJob(usecase use_cases.UseCaser, conf config.Saga) error {
	spec := conf.SupervisorSchedule
	if spec == "" {
		spec = "@every 1m"
		c.logger.Warnf("supervisor schedule not set, defaulting to %s", spec)
	}

	entryID, err := c.scheduler.Add(spec, NewSupervisorJob(usecase, c.logger))
	if err != nil {
		return fmt.Errorf("register supervisor job: %w", err)
	}

	c.logger.Infof("saga supervisor registered with ID: %d, schedule: %s", entryID, spec)
	return nil
}

func (c *Controller) Start() {
	c.logger.Info("starting cron scheduler")
	c.scheduler.Start()
}

func (c *Controller) Stop() {
	c.logger.Info("stopping cron scheduler")
	c.scheduler.Stop()
	c.logger.Info("cron scheduler stopped")
}
