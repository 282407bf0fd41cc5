package handlers

import (
	"strings"

	"github.com/anjiri1684/tutor_ledger/models"
	"github.com/anjiri1684/tutor_ledger/services"
	"github.com/gofiber/fiber/v2"
)

type processPayoutRequest struct {
	Note string `json:"note" validate:"max=1000"`
}

func (h *Handler) RequestPayout(c *fiber.Ctx) error {
	teacherID, _, err := caller(c)
	if err != nil {
		return err
	}
	var req services.PayoutRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	req.TeacherID = teacherID

	payout, err := h.Payouts.Request(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Payout request submitted",
		"payout":  payout,
	})
}

func (h *Handler) GetMyPayoutRequests(c *fiber.Ctx) error {
	teacherID, _, err := caller(c)
	if err != nil {
		return err
	}
	payouts, err := h.Payouts.ListForTeacher(c.UserContext(), teacherID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(payouts)
}

func (h *Handler) ListPayoutRequests(c *fiber.Ctx) error {
	status := models.PayoutStatus(strings.ToUpper(c.Query("status", string(models.PayoutPending))))
	payouts, err := h.Payouts.ListByStatus(c.UserContext(), status)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(payouts)
}

func (h *Handler) ApprovePayout(c *fiber.Ctx) error {
	id, err := paramID(c, "payoutId")
	if err != nil {
		return err
	}
	var req processPayoutRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	payout, err := h.Payouts.Approve(c.UserContext(), id, req.Note)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Payout approved", "payout": payout})
}

func (h *Handler) RejectPayout(c *fiber.Ctx) error {
	id, err := paramID(c, "payoutId")
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	payout, err := h.Payouts.Reject(c.UserContext(), id, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Payout rejected", "payout": payout})
}
