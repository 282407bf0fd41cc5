package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/anjiri1684/tutor_ledger/models"
	pkgerrors "github.com/anjiri1684/tutor_ledger/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BookingRepository interface {
	Create(ctx context.Context, b *models.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetByOrderReference(ctx context.Context, orderRef string) (*models.Booking, error)
	FindLive(ctx context.Context, teacherID uuid.UUID, date, start, end string) ([]models.Booking, error)
	ListOccupying(ctx context.Context, teacherID uuid.UUID, fromDate, toDate string) ([]models.Booking, error)
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]models.Booking, error)
	ListByTeacher(ctx context.Context, teacherID uuid.UUID) ([]models.Booking, error)
	ListCommittedOn(ctx context.Context, date string) ([]models.Booking, error)
	// Transition applies change only if the booking is currently in one of from.
	// It reports whether a row was updated.
	Transition(ctx context.Context, id uuid.UUID, from []models.BookingStatus, change models.BookingChange) (bool, error)
	TransitionByOrder(ctx context.Context, orderRef string, from []models.BookingStatus, change models.BookingChange) (bool, error)
	// AttachOrder sets the order reference on a payable booking that has none yet.
	AttachOrder(ctx context.Context, id uuid.UUID, orderRef string, from []models.BookingStatus) (bool, error)
	CancelCollisions(ctx context.Context, keep *models.Booking, reason string) (int64, error)
	ExpireHolds(ctx context.Context, now time.Time) (int64, error)
	ExpireSlotHolds(ctx context.Context, teacherID uuid.UUID, date, start, end string, now time.Time) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type WalletRepository interface {
	// Credit adds amount to balance and total_earned, creating the wallet if needed.
	Credit(ctx context.Context, teacherID uuid.UUID, amount int64) error
	// Restore adds amount back to balance only. Used for refunds and compensation.
	Restore(ctx context.Context, teacherID uuid.UUID, amount int64) error
	// Debit subtracts amount from balance only if balance >= amount.
	Debit(ctx context.Context, teacherID uuid.UUID, amount int64) error
	AddWithdrawn(ctx context.Context, teacherID uuid.UUID, amount int64) error
	Get(ctx context.Context, teacherID uuid.UUID) (*models.Wallet, error)
	Replace(ctx context.Context, w *models.Wallet) error
}

type TransactionRepository interface {
	Create(ctx context.Context, t *models.Transaction) error
	// CreateCredited appends t and credits the teacher's wallet by amount
	// atomically. Either both happen or neither does.
	CreateCredited(ctx context.Context, t *models.Transaction, amount int64) error
	// Settle flips a PENDING entry to a terminal status.
	Settle(ctx context.Context, id uuid.UUID, status models.PaymentStatus) (bool, error)
	ListByTeacher(ctx context.Context, teacherID uuid.UUID, types ...models.TransactionType) ([]models.Transaction, error)
}

type PayoutRepository interface {
	Create(ctx context.Context, p *models.Payout) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	// Transition moves a PENDING payout to status, reporting whether it applied.
	Transition(ctx context.Context, id uuid.UUID, status models.PayoutStatus, note *string, at time.Time) (bool, error)
	AttachTransaction(ctx context.Context, id, transactionID uuid.UUID) error
	ListByTeacher(ctx context.Context, teacherID uuid.UUID) ([]models.Payout, error)
	ListByStatus(ctx context.Context, status models.PayoutStatus) ([]models.Payout, error)
}

type AvailabilityRepository interface {
	GetTemplate(ctx context.Context, teacherID uuid.UUID) ([]models.AvailabilityDay, error)
	ReplaceTemplate(ctx context.Context, teacherID uuid.UUID, days []models.AvailabilityDay) error
}

type DirectoryRepository interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetCourse(ctx context.Context, id uuid.UUID) (*models.Course, error)
}

// base bounds every storage call by a timeout.
type base struct {
	db      *gorm.DB
	timeout time.Duration
}

func newBase(db *gorm.DB, timeout time.Duration) base {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return base{db: db, timeout: timeout}
}

func (b base) conn(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	return b.db.WithContext(ctx), cancel
}

func mapError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, pkgerrors.ErrNotFound)
	default:
		return fmt.Errorf("%s: %w: %w", op, pkgerrors.ErrInternal, err)
	}
}
