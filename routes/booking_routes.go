package routes

import (
	"github.com/anjiri1684/tutor_ledger/handlers"
	"github.com/anjiri1684/tutor_ledger/middleware"
	"github.com/gofiber/fiber/v2"
)

func BookingRoutes(app *fiber.App, h *handlers.Handler, secret string) {
	api := app.Group("/api/v1")

	booking := api.Group("/bookings", middleware.Protected(secret))
	booking.Get("/me", h.GetMyBookings)
	booking.Post("", h.CreateBooking)
	booking.Get("/:bookingId", h.GetBooking)
	booking.Post("/:bookingId/cancel", h.CancelBooking)
	booking.Post("/:bookingId/reschedule", h.RescheduleBooking)
	booking.Post("/:bookingId/payment-intent", h.CreatePaymentIntent)

	teacherBooking := api.Group("/teacher/bookings", middleware.Protected(secret), middleware.TeacherRequired())
	teacherBooking.Post("/:bookingId/approve", h.ApproveBooking)
	teacherBooking.Post("/:bookingId/reject", h.RejectBooking)
	teacherBooking.Post("/:bookingId/complete", h.MarkBookingAsComplete)
}
