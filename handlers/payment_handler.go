package handlers

import (
	"github.com/anjiri1684/tutor_ledger/services"
	"github.com/gofiber/fiber/v2"
)

func (h *Handler) CreatePaymentIntent(c *fiber.Ctx) error {
	studentID, _, err := caller(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "bookingId")
	if err != nil {
		return err
	}
	order, err := h.Payments.CreateIntent(c.UserContext(), studentID, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(order)
}

// HandlePaymentWebhook is the provider callback. It is unauthenticated; the
// HMAC signature is the only proof of origin.
func (h *Handler) HandlePaymentWebhook(c *fiber.Ctx) error {
	var cb services.PaymentCallback
	if err := parseBody(c, &cb); err != nil {
		return err
	}
	result, err := h.Payments.Verify(c.UserContext(), cb)
	if err != nil {
		return respondError(c, err)
	}
	message := "Payment verified"
	if !result.Applied {
		message = "Payment already processed"
	}
	return c.JSON(fiber.Map{"message": message, "result": result})
}
