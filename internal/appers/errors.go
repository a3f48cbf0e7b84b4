package appers

import (
	"errors"
	"net/http"
	"time"

	"fulfillment/pkg/circuitbreaker"

	"github.com/gofiber/fiber/v2"
)

var (
	// decimal parsing errors for pgtype.Numeric
	ErrFormat    = errors.New("invalid decimal format")
	ErrScale     = errors.New("too many fractional digits (max 2)")
	ErrPrecision = errors.New("too many integer digits for NUMERIC(18,2)")

	// ErrInsufficientStock means the conditional stock decrement matched no row.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrReservationNotActive means the conditional transition out of ACTIVE
	// matched no row: the reservation was already terminalized by a
	// concurrent confirmation, release or reaper pass.
	ErrReservationNotActive = errors.New("reservation is not active")
)

type ErrorResp struct {
	StatusCode int    `json:"statusCode,omitempty"`
	StatusDesc string `json:"statusDesc,omitempty"`
}

func (e ErrorResp) Error() string {
	return e.StatusDesc
}

var (
	ErrOrderNotFound = ErrorResp{
		http.StatusNotFound,
		"order not found",
	}
	ErrOrderAlreadyExists = ErrorResp{
		http.StatusConflict,
		"order already exists",
	}
	ErrOrderNotCancellable = ErrorResp{
		http.StatusConflict,
		"order is already in a terminal state",
	}
	ErrCarrierNotFound = ErrorResp{
		http.StatusNotFound,
		"no active carrier serves the route",
	}
)

func SanitizeError(c *fiber.Ctx, err error) error {
	var errResp ErrorResp
	if errors.As(err, &errResp) {
		return c.Status(errResp.StatusCode).JSON(fiber.Map{
			"message": errResp.StatusDesc,
		})
	}

	// fail-fast from an open breaker is retryable, tell the client when
	var openErr *circuitbreaker.OpenError
	if errors.As(err, &openErr) {
		c.Set("Retry-After", openErr.RetryAfter.Round(time.Second).String())
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{
			"message": openErr.Error(),
		})
	}

	return NewErr(c, http.StatusInternalServerError, err)
}

func NewErr(ctx *fiber.Ctx, status int, err error) error {
	return ctx.Status(status).JSON(fiber.Map{
		"message": err.Error(),
	})
}
