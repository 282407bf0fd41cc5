package routes

import (
	"github.com/anjiri1684/tutor_ledger/handlers"
	"github.com/anjiri1684/tutor_ledger/middleware"
	"github.com/gofiber/fiber/v2"
)

func PaymentRoutes(app *fiber.App, h *handlers.Handler, limiter *middleware.IPRateLimiter) {
	api := app.Group("/api/v1")

	api.Post("/payments/webhook", middleware.RateLimit(limiter), h.HandlePaymentWebhook)
}
