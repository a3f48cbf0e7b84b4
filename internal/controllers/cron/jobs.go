package cron

import (
	"context"

	use_cases "fulfillment/internal/application/use-cases"

	"go.uber.org/zap"
)

// ReaperJob expires overdue stock reservations and returns their stock.
type ReaperJob struct {
	usecase use_cases.UseCaser
	logger  *zap.SugaredLogger
}

func NewReaperJob(usecase use_cases.UseCaser, logger *zap.SugaredLogger) *ReaperJob {
	return &ReaperJob{
		usecase: usecase,
		logger:  logger,
	}
}

func (j *ReaperJob) Run(ctx context.Context) {
	j.logger.Debug("reservation reaper job started")

	defer func() {
		if r := recover(); r != nil {
			j.logger.Errorf("panic in reservation reaper job: %v", r)
		}
	}()

	j.usecase.ReapReservations(ctx)
	j.logger.Debug("reservation reaper job finished")
}

// SupervisorJob compensates sagas that stopped making progress.
type SupervisorJob struct {
	usecase use_cases.UseCaser
	logger  *zap.SugaredLogger
}

func NewSupervisorJob(usecase use_cases.UseCaser, logger *zap.SugaredLogger) *SupervisorJob {
	return &SupervisorJob{
		usecase: usecase,
		logger:  logger,
	}
}

func (j *SupervisorJob) Run(ctx context.Context) {
	j.logger.Debug("saga supervisor job started")

	defer func() {
		if r := recover(); r != nil {
			j.logger.Errorf("panic in saga supervisor job: %v", r)
		}
	}()

	j.usecase.SuperviseSagas(ctx)
	j.logger.Debug("saga supervisor job finished")
}
