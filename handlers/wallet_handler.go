package handlers

import (
	"github.com/anjiri1684/tutor_ledger/models"
	"github.com/gofiber/fiber/v2"
)

func (h *Handler) GetMyWallet(c *fiber.Ctx) error {
	teacherID, _, err := caller(c)
	if err != nil {
		return err
	}
	wallet, err := h.Ledger.Wallet(c.UserContext(), teacherID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(wallet)
}

func (h *Handler) GetTeacherEarnings(c *fiber.Ctx) error {
	teacherID, _, err := caller(c)
	if err != nil {
		return err
	}
	earnings, err := h.Ledger.Earnings(c.UserContext(), teacherID)
	if err != nil {
		return respondError(c, err)
	}
	var total int64
	for _, e := range earnings {
		total += e.GrossAmount
	}
	return c.JSON(fiber.Map{"total": total, "earnings": earnings})
}

func (h *Handler) GetMyTransactions(c *fiber.Ctx) error {
	teacherID, _, err := caller(c)
	if err != nil {
		return err
	}
	var types []models.TransactionType
	if t := c.Query("type"); t != "" {
		types = append(types, models.TransactionType(t))
	}
	txns, err := h.Ledger.History(c.UserContext(), teacherID, types...)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(txns)
}

func (h *Handler) RebuildWallet(c *fiber.Ctx) error {
	teacherID, err := paramID(c, "teacherId")
	if err != nil {
		return err
	}
	wallet, err := h.Ledger.Rebuild(c.UserContext(), teacherID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Wallet rebuilt from ledger", "wallet": wallet})
}
