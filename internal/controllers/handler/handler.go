package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fulfillment/internal/appers"
	"fulfillment/internal/application/common"
	"fulfillment/internal/application/entity"
	use_cases "fulfillment/internal/application/use-cases"
	"fulfillment/pkg/validator"

	playgroundvalidator "github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

type Handler interface {
	CreateOrder(c *fiber.Ctx) error
	GetOrder(c *fiber.Ctx) error
	CancelOrder(c *fiber.Ctx) error
	GetOrderSaga(c *fiber.Ctx) error
	HealthCheck(c *fiber.Ctx) error
}
type HandlerImpl struct {
	usecase use_cases.UseCaser
	logger  *zap.SugaredLogger
}

func NewOrderHandler(usecase use_cases.UseCaser, logger *zap.SugaredLogger) *HandlerImpl {
	return &HandlerImpl{
		usecase: usecase,
		logger:  logger,
	}
}

func formatValidationErrors(err error) fiber.Map {
	var details []string
	if validationErrors, ok := err.(playgroundvalidator.ValidationErrors); ok {
		for _, e := range validationErrors {
			field := e.Field()
			tag := e.Tag()
			var message string
			switch tag {
			case "required":
				message = fmt.Sprintf("field '%s' is required", field)
			case "min":
				message = fmt.Sprintf("field '%s' must have at least %s elements or characters", field, e.Param())
			case "max":
				message = fmt.Sprintf("field '%s' must have at most %s elements or characters", field, e.Param())
			case "gt":
				message = fmt.Sprintf("field '%s' must be greater than %s", field, e.Param())
			case "decimal2":
				message = fmt.Sprintf("field '%s' must be a decimal with at most 2 fractional digits", field)
			default:
				message = fmt.Sprintf("field '%s' failed validation: %s", field, tag)
			}
			details = append(details, message)
		}
	} else {
		details = append(details, err.Error())
	}
	return fiber.Map{
		"error":   "validation failed",
		"details": details,
	}
}

func (h *HandlerImpl) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	dbHealthy, kafkaHealthy, _ := h.usecase.HealthCheck(ctx)

	health := entity.HealthCheckResponse{
		Status:  dbHealthy && kafkaHealthy,
		Message: "success",
		Version: common.Version,
		Checks: entity.HealthCheckResponseData{
			Database: entity.HealthCheckItem{Status: dbHealthy, Type: "postgresql"},
			Kafka:    entity.HealthCheckItem{Status: kafkaHealthy, Type: "kafka"},
		},
	}
	if !dbHealthy {
		health.Checks.Database.Error = "Database connection failed"
		health.Message = "Some services are unavailable"
	}
	if !kafkaHealthy {
		health.Checks.Kafka.Error = "Kafka connection failed"
		health.Message = "Some services are unavailable"
	}

	if !dbHealthy || !kafkaHealthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(health)
	}

	return c.Status(fiber.StatusOK).JSON(health)
}

// CreateOrder accepts a new order and starts its fulfillment saga. The
// response is 202: the saga outcome arrives asynchronously.
func (h *HandlerImpl) CreateOrder(c *fiber.Ctx) error {
	var req entity.CreateOrderRequest
	err := c.BodyParser(&req)
	if err != nil {
		h.logger.Errorf("error parsing body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if err = validator.Validate.Struct(&req); err != nil {
		h.logger.Warnf("validation error: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(formatValidationErrors(err))
	}

	order, err := h.usecase.CreateOrder(c.Context(), req)
	switch {
	case errors.Is(err, appers.ErrOrderAlreadyExists):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"description": err.Error()})
	case err != nil:
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(order)
}

func (h *HandlerImpl) GetOrder(c *fiber.Ctx) error {
	id, err := uuid.FromString(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid order id",
		})
	}

	order, err := h.usecase.GetOrder(c.Context(), id)
	if err != nil {
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(order)
}

// CancelOrder is the client-initiated cancellation; only PENDING orders move.
func (h *HandlerImpl) CancelOrder(c *fiber.Ctx) error {
	id, err := uuid.FromString(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid order id",
		})
	}

	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.BodyParser(&body)
	if body.Reason == "" {
		body.Reason = "cancelled by customer"
	}

	err = h.usecase.CancelOrder(c.Context(), id, body.Reason)
	if err != nil {
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"description": "ok"})
}

// GetOrderSaga exposes the saga record for one order, mostly for operators.
func (h *HandlerImpl) GetOrderSaga(c *fiber.Ctx) error {
	id, err := uuid.FromString(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid order id",
		})
	}

	st, err := h.usecase.GetSagaByOrder(c.Context(), id)
	if err != nil {
		return appers.SanitizeError(c, err)
	}
	if st == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no saga for order",
		})
	}
	return c.Status(fiber.StatusOK).JSON(st)
}
