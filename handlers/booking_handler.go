package handlers

import (
	"github.com/anjiri1684/tutor_ledger/middleware"
	"github.com/anjiri1684/tutor_ledger/services"
	"github.com/gofiber/fiber/v2"
)

func (h *Handler) CreateBooking(c *fiber.Ctx) error {
	studentID, _, err := caller(c)
	if err != nil {
		return err
	}
	var req services.HoldRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	req.StudentID = studentID

	booking, err := h.Bookings.CreateHold(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Slot held. Complete approval and payment before the hold expires.",
		"booking": booking,
	})
}

func (h *Handler) GetMyBookings(c *fiber.Ctx) error {
	userID, role, err := caller(c)
	if err != nil {
		return err
	}
	list := h.Bookings.ListForStudent
	if role == middleware.RoleTeacher {
		list = h.Bookings.ListForTeacher
	}
	bookings, err := list(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(bookings)
}

func (h *Handler) GetBooking(c *fiber.Ctx) error {
	userID, role, err := caller(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "bookingId")
	if err != nil {
		return err
	}
	if role == middleware.RoleAdmin {
		booking, err := h.Bookings.Get(c.UserContext(), id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(booking)
	}
	booking, err := h.Bookings.GetFor(c.UserContext(), userID, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(booking)
}

func (h *Handler) CancelBooking(c *fiber.Ctx) error {
	userID, _, err := caller(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "bookingId")
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	booking, err := h.Bookings.Cancel(c.UserContext(), userID, id, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Booking cancelled", "booking": booking})
}

func (h *Handler) RescheduleBooking(c *fiber.Ctx) error {
	userID, _, err := caller(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "bookingId")
	if err != nil {
		return err
	}
	var req services.RescheduleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	req.ActorID = userID
	req.BookingID = id

	replacement, err := h.Reschedules.Reschedule(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Booking rescheduled", "booking": replacement})
}

func (h *Handler) ApproveBooking(c *fiber.Ctx) error {
	teacherID, _, err := caller(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "bookingId")
	if err != nil {
		return err
	}
	booking, err := h.Bookings.Approve(c.UserContext(), teacherID, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Booking approved", "booking": booking})
}

func (h *Handler) RejectBooking(c *fiber.Ctx) error {
	teacherID, _, err := caller(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "bookingId")
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	booking, err := h.Bookings.Reject(c.UserContext(), teacherID, id, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Booking rejected", "booking": booking})
}

func (h *Handler) MarkBookingAsComplete(c *fiber.Ctx) error {
	teacherID, _, err := caller(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "bookingId")
	if err != nil {
		return err
	}
	booking, err := h.Bookings.Complete(c.UserContext(), teacherID, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Booking marked as completed", "booking": booking})
}
