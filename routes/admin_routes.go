package routes

import (
	"github.com/anjiri1684/tutor_ledger/handlers"
	"github.com/anjiri1684/tutor_ledger/middleware"
	"github.com/gofiber/fiber/v2"
)

func AdminRoutes(app *fiber.App, h *handlers.Handler, secret string) {
	api := app.Group("/api/v1")

	admin := api.Group("/admin", middleware.Protected(secret), middleware.AdminRequired())

	admin.Get("/payout-requests", h.ListPayoutRequests)
	admin.Post("/payout-requests/:payoutId/approve", h.ApprovePayout)
	admin.Post("/payout-requests/:payoutId/reject", h.RejectPayout)

	admin.Get("/bookings/:bookingId", h.GetBooking)
	admin.Post("/wallets/:teacherId/rebuild", h.RebuildWallet)
}
