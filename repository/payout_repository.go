package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/anjiri1684/tutor_ledger/models"
	"github.com/anjiri1684/tutor_ledger/observability"
	pkgerrors "github.com/anjiri1684/tutor_ledger/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GormPayoutRepository struct {
	base
}

func NewPayoutRepository(db *gorm.DB, timeout time.Duration) *GormPayoutRepository {
	return &GormPayoutRepository{base: newBase(db, timeout)}
}

func (r *GormPayoutRepository) Create(ctx context.Context, p *models.Payout) error {
	defer observability.ObserveRepository("Payout.Create", time.Now())
	db, cancel := r.conn(ctx)
	defer cancel()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return mapError("create payout", db.Create(p).Error)
}

func (r *GormPayoutRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var p models.Payout
	if err := db.First(&p, "id = ?", id).Error; err != nil {
		return nil, mapError("get payout", err)
	}
	return &p, nil
}

func (r *GormPayoutRepository) Transition(ctx context.Context, id uuid.UUID, status models.PayoutStatus, note *string, at time.Time) (bool, error) {
	defer observability.ObserveRepository("Payout.Transition", time.Now())
	db, cancel := r.conn(ctx)
	defer cancel()

	cols := map[string]interface{}{
		"status":       status,
		"processed_at": at,
	}
	if note != nil {
		cols["admin_note"] = *note
	}
	res := db.Model(&models.Payout{}).
		Where("id = ? AND status = ?", id, models.PayoutPending).
		Updates(cols)
	if res.Error != nil {
		return false, mapError("transition payout", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormPayoutRepository) AttachTransaction(ctx context.Context, id, transactionID uuid.UUID) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	res := db.Model(&models.Payout{}).Where("id = ?", id).Update("transaction_id", transactionID)
	if res.Error != nil {
		return mapError("attach payout transaction", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("attach payout transaction: %w", pkgerrors.ErrNotFound)
	}
	return nil
}

func (r *GormPayoutRepository) ListByTeacher(ctx context.Context, teacherID uuid.UUID) ([]models.Payout, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var payouts []models.Payout
	err := db.Where("teacher_id = ?", teacherID).Order("requested_at desc").Find(&payouts).Error
	return payouts, mapError("list teacher payouts", err)
}

func (r *GormPayoutRepository) ListByStatus(ctx context.Context, status models.PayoutStatus) ([]models.Payout, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var payouts []models.Payout
	err := db.Where("status = ?", status).Order("requested_at asc").Find(&payouts).Error
	return payouts, mapError("list payouts", err)
}
