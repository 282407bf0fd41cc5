package routes

import (
	"github.com/anjiri1684/tutor_ledger/handlers"
	"github.com/anjiri1684/tutor_ledger/middleware"
	"github.com/gofiber/fiber/v2"
)

func TeacherRoutes(app *fiber.App, h *handlers.Handler, secret string) {
	api := app.Group("/api/v1")

	api.Get("/teachers/:teacherId/availability", h.GetTeacherAvailability)

	teacher := api.Group("/teacher", middleware.Protected(secret), middleware.TeacherRequired())
	teacher.Get("/availability", h.GetMyAvailability)
	teacher.Put("/availability", h.SetMyAvailability)
	teacher.Get("/wallet", h.GetMyWallet)
	teacher.Get("/earnings", h.GetTeacherEarnings)
	teacher.Get("/transactions", h.GetMyTransactions)
	teacher.Post("/payouts", h.RequestPayout)
	teacher.Get("/payouts", h.GetMyPayoutRequests)
}
