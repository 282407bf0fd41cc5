package handlers

import (
	"github.com/anjiri1684/tutor_ledger/models"
	"github.com/gofiber/fiber/v2"
)

type availabilityRequest struct {
	Days []availabilityDay `json:"days" validate:"required,max=7,dive"`
}

type availabilityDay struct {
	Day     string             `json:"day" validate:"required"`
	Enabled bool               `json:"enabled"`
	Slots   []models.TimeRange `json:"slots" validate:"dive"`
}

func (h *Handler) GetTeacherAvailability(c *fiber.Ctx) error {
	teacherID, err := paramID(c, "teacherId")
	if err != nil {
		return err
	}
	slots, err := h.Availability.OpenSlots(c.UserContext(), teacherID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"teacher_id": teacherID, "slots": slots})
}

func (h *Handler) GetMyAvailability(c *fiber.Ctx) error {
	teacherID, _, err := caller(c)
	if err != nil {
		return err
	}
	days, err := h.Availability.Template(c.UserContext(), teacherID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(days)
}

func (h *Handler) SetMyAvailability(c *fiber.Ctx) error {
	teacherID, _, err := caller(c)
	if err != nil {
		return err
	}
	var req availabilityRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	days := make([]models.AvailabilityDay, 0, len(req.Days))
	for _, d := range req.Days {
		day := models.AvailabilityDay{TeacherID: teacherID, Day: d.Day, Enabled: d.Enabled}
		for _, s := range d.Slots {
			day.Slots = append(day.Slots, models.AvailabilitySlot{StartTime: s.Start, EndTime: s.End})
		}
		days = append(days, day)
	}
	if err := h.Availability.SetTemplate(c.UserContext(), teacherID, days); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Availability updated", "days": days})
}
