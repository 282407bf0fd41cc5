package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/anjiri1684/tutor_ledger/models"
	"github.com/anjiri1684/tutor_ledger/observability"
	pkgerrors "github.com/anjiri1684/tutor_ledger/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GormTransactionRepository struct {
	base
}

func NewTransactionRepository(db *gorm.DB, timeout time.Duration) *GormTransactionRepository {
	return &GormTransactionRepository{base: newBase(db, timeout)}
}

func (r *GormTransactionRepository) Create(ctx context.Context, t *models.Transaction) error {
	defer observability.ObserveRepository("Transaction.Create", time.Now())
	if t.GrossAmount <= 0 {
		return fmt.Errorf("create transaction: %w: amount must be positive", pkgerrors.ErrValidation)
	}
	db, cancel := r.conn(ctx)
	defer cancel()

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	err := db.Create(t).Error
	if stderrors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("create transaction: %w", pkgerrors.ErrAlreadyRecorded)
	}
	return mapError("create transaction", err)
}

// CreateCredited appends t and credits t.TeacherID's wallet by amount in one
// database transaction. A duplicate entry rolls back the credit as well.
func (r *GormTransactionRepository) CreateCredited(ctx context.Context, t *models.Transaction, amount int64) error {
	defer observability.ObserveRepository("Transaction.CreateCredited", time.Now())
	if t.GrossAmount <= 0 || amount <= 0 {
		return fmt.Errorf("create credited transaction: %w: amount must be positive", pkgerrors.ErrValidation)
	}
	db, cancel := r.conn(ctx)
	defer cancel()

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(t).Error; err != nil {
			return err
		}
		return incrementWallet(tx, t.TeacherID, amount, amount)
	})
	if stderrors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("create credited transaction: %w", pkgerrors.ErrAlreadyRecorded)
	}
	return mapError("create credited transaction", err)
}

func (r *GormTransactionRepository) Settle(ctx context.Context, id uuid.UUID, status models.PaymentStatus) (bool, error) {
	defer observability.ObserveRepository("Transaction.Settle", time.Now())
	db, cancel := r.conn(ctx)
	defer cancel()

	res := db.Model(&models.Transaction{}).
		Where("id = ? AND payment_status = ?", id, models.PaymentPending).
		Update("payment_status", status)
	if res.Error != nil {
		return false, mapError("settle transaction", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormTransactionRepository) ListByTeacher(ctx context.Context, teacherID uuid.UUID, types ...models.TransactionType) ([]models.Transaction, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	q := db.Where("teacher_id = ?", teacherID)
	if len(types) > 0 {
		q = q.Where("type IN ?", types)
	}
	var txns []models.Transaction
	err := q.Order("created_at asc").Find(&txns).Error
	return txns, mapError("list transactions", err)
}
