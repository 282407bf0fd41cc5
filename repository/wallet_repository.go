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
	"gorm.io/gorm/clause"
)

// GormWalletRepository mutates wallets only through single conditional
// statements so concurrent credits and debits serialize in the database.
type GormWalletRepository struct {
	base
}

func NewWalletRepository(db *gorm.DB, timeout time.Duration) *GormWalletRepository {
	return &GormWalletRepository{base: newBase(db, timeout)}
}

func (r *GormWalletRepository) Credit(ctx context.Context, teacherID uuid.UUID, amount int64) error {
	defer observability.ObserveRepository("Wallet.Credit", time.Now())
	return r.upsertIncrement(ctx, teacherID, amount, amount)
}

func (r *GormWalletRepository) Restore(ctx context.Context, teacherID uuid.UUID, amount int64) error {
	defer observability.ObserveRepository("Wallet.Restore", time.Now())
	return r.upsertIncrement(ctx, teacherID, amount, 0)
}

func (r *GormWalletRepository) upsertIncrement(ctx context.Context, teacherID uuid.UUID, balance, earned int64) error {
	if balance <= 0 {
		return fmt.Errorf("credit wallet: %w: amount must be positive", pkgerrors.ErrValidation)
	}
	db, cancel := r.conn(ctx)
	defer cancel()
	return mapError("credit wallet", incrementWallet(db, teacherID, balance, earned))
}

// incrementWallet adds to balance and total_earned in one upsert, creating the
// wallet on first use. It runs on whatever handle it is given, including a
// transaction opened by another repository.
func incrementWallet(db *gorm.DB, teacherID uuid.UUID, balance, earned int64) error {
	wallet := models.Wallet{
		ID:          uuid.New(),
		TeacherID:   teacherID,
		Balance:     balance,
		TotalEarned: earned,
	}
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "teacher_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"balance":      gorm.Expr("wallets.balance + ?", balance),
			"total_earned": gorm.Expr("wallets.total_earned + ?", earned),
			"updated_at":   time.Now(),
		}),
	}).Create(&wallet).Error
}

func (r *GormWalletRepository) Debit(ctx context.Context, teacherID uuid.UUID, amount int64) error {
	defer observability.ObserveRepository("Wallet.Debit", time.Now())
	if amount <= 0 {
		return fmt.Errorf("debit wallet: %w: amount must be positive", pkgerrors.ErrValidation)
	}
	db, cancel := r.conn(ctx)
	defer cancel()

	res := db.Model(&models.Wallet{}).
		Where("teacher_id = ? AND balance >= ?", teacherID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return mapError("debit wallet", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := db.Model(&models.Wallet{}).Where("teacher_id = ?", teacherID).Count(&count).Error; err != nil {
		return mapError("debit wallet", err)
	}
	if count == 0 {
		return fmt.Errorf("debit wallet: %w: no earnings yet", pkgerrors.ErrInsufficientFunds)
	}
	return fmt.Errorf("debit wallet: %w", pkgerrors.ErrInsufficientFunds)
}

func (r *GormWalletRepository) AddWithdrawn(ctx context.Context, teacherID uuid.UUID, amount int64) error {
	defer observability.ObserveRepository("Wallet.AddWithdrawn", time.Now())
	db, cancel := r.conn(ctx)
	defer cancel()

	res := db.Model(&models.Wallet{}).
		Where("teacher_id = ?", teacherID).
		Update("total_withdrawn", gorm.Expr("total_withdrawn + ?", amount))
	if res.Error != nil {
		return mapError("record withdrawal", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("record withdrawal: %w", pkgerrors.ErrNotFound)
	}
	return nil
}

func (r *GormWalletRepository) Get(ctx context.Context, teacherID uuid.UUID) (*models.Wallet, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var w models.Wallet
	err := db.Preload("Withdrawals", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("requested_at desc")
	}).First(&w, "teacher_id = ?", teacherID).Error
	if err != nil {
		return nil, mapError("get wallet", err)
	}
	return &w, nil
}

// Replace overwrites the materialized totals, used when rebuilding from the ledger.
func (r *GormWalletRepository) Replace(ctx context.Context, w *models.Wallet) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "teacher_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"balance", "total_earned", "total_withdrawn", "updated_at"}),
	}).Create(w).Error
	return mapError("replace wallet", err)
}
