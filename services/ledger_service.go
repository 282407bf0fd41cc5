package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/anjiri1684/tutor_ledger/models"
	"github.com/anjiri1684/tutor_ledger/observability"
	pkgerrors "github.com/anjiri1684/tutor_ledger/pkg/errors"
	"github.com/anjiri1684/tutor_ledger/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const DefaultCommissionRate = 0.20

type LedgerConfig struct {
	CommissionRate float64
}

// Split is the division of one gross payment between platform and instructor.
// PlatformFee + InstructorShare always equals Gross.
type Split struct {
	Gross           int64
	PlatformFee     int64
	InstructorShare int64
}

// SplitRevenue applies rate to gross in whole basis points and rounds the fee
// half-up in minor currency units. The instructor gets the remainder.
func SplitRevenue(gross int64, rate float64) Split {
	bp := int64(math.Round(rate * 10000))
	if bp < 0 {
		bp = 0
	}
	if bp > 10000 {
		bp = 10000
	}
	fee := (gross*bp + 5000) / 10000
	return Split{Gross: gross, PlatformFee: fee, InstructorShare: gross - fee}
}

type LedgerService struct {
	wallets      repository.WalletRepository
	transactions repository.TransactionRepository
	rate         float64
}

func NewLedgerService(wallets repository.WalletRepository, transactions repository.TransactionRepository, cfg LedgerConfig) *LedgerService {
	rate := cfg.CommissionRate
	if rate < 0 || rate > 1 {
		rate = DefaultCommissionRate
	}
	return &LedgerService{wallets: wallets, transactions: transactions, rate: rate}
}

func (s *LedgerService) CommissionRate() float64 { return s.rate }

func (s *LedgerService) Credit(ctx context.Context, teacherID uuid.UUID, amount int64) (err error) {
	ctx, span := tracer.Start(ctx, "Credit")
	defer func() { endSpan(span, err) }()

	if amount <= 0 {
		return validationErr("credit amount must be positive")
	}
	err = s.wallets.Credit(ctx, teacherID, amount)
	observability.RecordWalletMutation("credit", err)
	if err != nil {
		return err
	}
	slog.Info("wallet credited", "teacher_id", teacherID, "amount", amount)
	return nil
}

func (s *LedgerService) Debit(ctx context.Context, teacherID uuid.UUID, amount int64) (err error) {
	ctx, span := tracer.Start(ctx, "Debit")
	defer func() { endSpan(span, err) }()

	if amount <= 0 {
		return validationErr("debit amount must be positive")
	}
	err = s.wallets.Debit(ctx, teacherID, amount)
	observability.RecordWalletMutation("debit", err)
	if err != nil {
		return err
	}
	slog.Info("wallet debited", "teacher_id", teacherID, "amount", amount)
	return nil
}

// Restore gives amount back to the balance without counting it as new earnings.
func (s *LedgerService) Restore(ctx context.Context, teacherID uuid.UUID, amount int64) (err error) {
	ctx, span := tracer.Start(ctx, "Restore")
	defer func() { endSpan(span, err) }()

	err = s.wallets.Restore(ctx, teacherID, amount)
	observability.RecordWalletMutation("restore", err)
	if err != nil {
		return err
	}
	slog.Info("wallet balance restored", "teacher_id", teacherID, "amount", amount)
	return nil
}

func (s *LedgerService) RecordWithdrawn(ctx context.Context, teacherID uuid.UUID, amount int64) error {
	err := s.wallets.AddWithdrawn(ctx, teacherID, amount)
	observability.RecordWalletMutation("withdrawn", err)
	return err
}

// RecordBookingPayment writes the purchase and earning entries for a paid
// booking and credits the instructor share. The earning entry and the credit
// commit together, so repeated calls for the same booking credit once and a
// failed call leaves nothing for the next one to skip. The returned bool
// reports whether the wallet was credited by this call.
func (s *LedgerService) RecordBookingPayment(ctx context.Context, b *models.Booking) (_ *Split, credited bool, err error) {
	ctx, span := tracer.Start(ctx, "RecordBookingPayment")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(
		attribute.String("booking_id", b.ID.String()),
		attribute.Int64("amount", b.Price),
	)

	split := SplitRevenue(b.Price, s.rate)
	if b.Price <= 0 {
		return &split, false, nil
	}

	bookingID := b.ID
	purchase := &models.Transaction{
		TeacherID:       b.TeacherID,
		Type:            models.TxnBookingPayment,
		Nature:          models.NatureCredit,
		GrossAmount:     split.Gross,
		InstructorShare: split.InstructorShare,
		PlatformFee:     split.PlatformFee,
		Currency:        b.Currency,
		PaymentMethod:   "online",
		PaymentStatus:   models.PaymentSuccess,
		BookingID:       &bookingID,
		CourseID:        &b.CourseID,
		Reference:       b.PaymentReference,
	}
	if err := s.transactions.Create(ctx, purchase); err != nil && !errors.Is(err, pkgerrors.ErrAlreadyRecorded) {
		return nil, false, fmt.Errorf("record booking payment: %w", err)
	}

	if split.InstructorShare == 0 {
		return &split, false, nil
	}

	earning := &models.Transaction{
		TeacherID:       b.TeacherID,
		Type:            models.TxnEarning,
		Nature:          models.NatureCredit,
		GrossAmount:     split.InstructorShare,
		InstructorShare: split.InstructorShare,
		Currency:        b.Currency,
		PaymentMethod:   "online",
		PaymentStatus:   models.PaymentSuccess,
		BookingID:       &bookingID,
		CourseID:        &b.CourseID,
		Reference:       b.PaymentReference,
	}
	err = s.transactions.CreateCredited(ctx, earning, split.InstructorShare)
	if errors.Is(err, pkgerrors.ErrAlreadyRecorded) {
		slog.Info("booking earning already recorded", "booking_id", b.ID)
		return &split, false, nil
	}
	observability.RecordWalletMutation("credit", err)
	if err != nil {
		return nil, false, fmt.Errorf("record booking earning: %w", err)
	}
	slog.Info("booking payment recorded",
		"booking_id", b.ID,
		"teacher_id", b.TeacherID,
		"gross", split.Gross,
		"platform_fee", split.PlatformFee,
		"instructor_share", split.InstructorShare)
	return &split, true, nil
}

func (s *LedgerService) Wallet(ctx context.Context, teacherID uuid.UUID) (*models.Wallet, error) {
	return s.wallets.Get(ctx, teacherID)
}

// History lists a teacher's ledger entries, optionally filtered by type.
func (s *LedgerService) History(ctx context.Context, teacherID uuid.UUID, types ...models.TransactionType) ([]models.Transaction, error) {
	return s.transactions.ListByTeacher(ctx, teacherID, types...)
}

func (s *LedgerService) Earnings(ctx context.Context, teacherID uuid.UUID) ([]models.Transaction, error) {
	return s.History(ctx, teacherID, models.TxnEarning)
}

// Rebuild recomputes the wallet from the transaction log and overwrites the
// stored totals.
func (s *LedgerService) Rebuild(ctx context.Context, teacherID uuid.UUID) (_ *models.Wallet, err error) {
	ctx, span := tracer.Start(ctx, "Rebuild")
	defer func() { endSpan(span, err) }()

	txns, err := s.transactions.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	w := ReplayLedger(teacherID, txns)
	if existing, err := s.wallets.Get(ctx, teacherID); err == nil {
		w.ID = existing.ID
	} else if !errors.Is(err, pkgerrors.ErrNotFound) {
		return nil, err
	}
	if w.Balance < 0 {
		return nil, fmt.Errorf("rebuild wallet: %w: ledger replays to negative balance %d", pkgerrors.ErrInternal, w.Balance)
	}
	if err := s.wallets.Replace(ctx, w); err != nil {
		return nil, err
	}
	slog.Warn("wallet rebuilt from ledger",
		"teacher_id", teacherID,
		"balance", w.Balance,
		"total_earned", w.TotalEarned,
		"total_withdrawn", w.TotalWithdrawn,
		"entries", len(txns))
	return w, nil
}

// ReplayLedger folds transactions into wallet totals. Purchase and
// booking-payment entries record gross revenue only and do not touch the
// wallet. A pending withdrawal has already reserved its amount; a failed one
// has been refunded.
func ReplayLedger(teacherID uuid.UUID, txns []models.Transaction) *models.Wallet {
	w := &models.Wallet{TeacherID: teacherID}
	for _, t := range txns {
		switch t.Type {
		case models.TxnEarning:
			if t.PaymentStatus == models.PaymentSuccess {
				w.Balance += t.GrossAmount
				w.TotalEarned += t.GrossAmount
			}
		case models.TxnAdjustment:
			if t.PaymentStatus != models.PaymentSuccess {
				continue
			}
			if t.Nature == models.NatureDebit {
				w.Balance -= t.GrossAmount
			} else {
				w.Balance += t.GrossAmount
			}
		case models.TxnWithdrawal:
			switch t.PaymentStatus {
			case models.PaymentPending:
				w.Balance -= t.GrossAmount
			case models.PaymentSuccess:
				w.Balance -= t.GrossAmount
				w.TotalWithdrawn += t.GrossAmount
			}
		}
	}
	return w
}
