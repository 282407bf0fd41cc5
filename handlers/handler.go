package handlers

import (
	"errors"
	"log/slog"

	"github.com/anjiri1684/tutor_ledger/middleware"
	pkgerrors "github.com/anjiri1684/tutor_ledger/pkg/errors"
	"github.com/anjiri1684/tutor_ledger/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

var validate = validator.New()

type Handler struct {
	Bookings     *services.BookingService
	Availability *services.AvailabilityService
	Payments     *services.PaymentService
	Ledger       *services.LedgerService
	Payouts      *services.PayoutService
	Reschedules  *services.RescheduleService
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pkgerrors.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, pkgerrors.ErrSlotConflict):
		return fiber.StatusConflict
	case errors.Is(err, pkgerrors.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, pkgerrors.ErrInvalidTransition):
		return fiber.StatusConflict
	case errors.Is(err, pkgerrors.ErrInvalidSignature):
		return fiber.StatusUnauthorized
	case errors.Is(err, pkgerrors.ErrInsufficientFunds):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError converts a service error into a *fiber.Error for the app's
// error handler. Internal details are logged, never returned.
func respondError(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	if code == fiber.StatusInternalServerError {
		slog.Error("request failed", "path", c.Path(), "method", c.Method(), "error", err)
		return fiber.NewError(code, "Internal server error")
	}
	return fiber.NewError(code, err.Error())
}

func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Cannot parse JSON")
	}
	if err := validate.Struct(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

func paramID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "Invalid "+name)
	}
	return id, nil
}

func caller(c *fiber.Ctx) (uuid.UUID, string, error) {
	id, role, err := middleware.Claims(c)
	if err != nil {
		return uuid.Nil, "", fiber.NewError(fiber.StatusUnauthorized, "Invalid token claims")
	}
	return id, role, nil
}

// ErrorHandler renders every handler error as a JSON body.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	} else {
		slog.Error("unhandled error", "path", c.Path(), "method", c.Method(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{
		"status":  "error",
		"code":    code,
		"message": message,
	})
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}
