package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anjiri1684/tutor_ledger/models"
	"github.com/anjiri1684/tutor_ledger/observability"
	pkgerrors "github.com/anjiri1684/tutor_ledger/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GormBookingRepository struct {
	base
}

func NewBookingRepository(db *gorm.DB, timeout time.Duration) *GormBookingRepository {
	return &GormBookingRepository{base: newBase(db, timeout)}
}

func (r *GormBookingRepository) Create(ctx context.Context, b *models.Booking) error {
	defer observability.ObserveRepository("Booking.Create", time.Now())
	db, cancel := r.conn(ctx)
	defer cancel()

	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	err := db.Create(b).Error
	if stderrors.Is(err, gorm.ErrDuplicatedKey) {
		slog.Warn("live slot index rejected booking",
			"teacher_id", b.TeacherID, "date", b.Date, "start", b.SlotStart, "end", b.SlotEnd)
		return fmt.Errorf("create booking: %w", pkgerrors.ErrSlotConflict)
	}
	return mapError("create booking", err)
}

func (r *GormBookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	defer observability.ObserveRepository("Booking.GetByID", time.Now())
	db, cancel := r.conn(ctx)
	defer cancel()

	var b models.Booking
	if err := db.First(&b, "id = ?", id).Error; err != nil {
		return nil, mapError("get booking", err)
	}
	return &b, nil
}

func (r *GormBookingRepository) GetByOrderReference(ctx context.Context, orderRef string) (*models.Booking, error) {
	defer observability.ObserveRepository("Booking.GetByOrderReference", time.Now())
	db, cancel := r.conn(ctx)
	defer cancel()

	var b models.Booking
	if err := db.First(&b, "order_reference = ?", orderRef).Error; err != nil {
		return nil, mapError("get booking by order", err)
	}
	return &b, nil
}

func (r *GormBookingRepository) FindLive(ctx context.Context, teacherID uuid.UUID, date, start, end string) ([]models.Booking, error) {
	defer observability.ObserveRepository("Booking.FindLive", time.Now())
	db, cancel := r.conn(ctx)
	defer cancel()

	var bookings []models.Booking
	err := db.
		Where("teacher_id = ? AND date = ? AND slot_start = ? AND slot_end = ?", teacherID, date, start, end).
		Where("status IN ?", models.LiveBookingStatuses).
		Find(&bookings).Error
	return bookings, mapError("find live bookings", err)
}

func (r *GormBookingRepository) ListOccupying(ctx context.Context, teacherID uuid.UUID, fromDate, toDate string) ([]models.Booking, error) {
	defer observability.ObserveRepository("Booking.ListOccupying", time.Now())
	db, cancel := r.conn(ctx)
	defer cancel()

	var bookings []models.Booking
	err := db.
		Where("teacher_id = ? AND date BETWEEN ? AND ?", teacherID, fromDate, toDate).
		Where("status IN ?", models.LiveBookingStatuses).
		Find(&bookings).Error
	return bookings, mapError("list occupying bookings", err)
}

func (r *GormBookingRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]models.Booking, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var bookings []models.Booking
	err := db.Where("student_id = ?", studentID).Order("date desc, slot_start desc").Find(&bookings).Error
	return bookings, mapError("list student bookings", err)
}

func (r *GormBookingRepository) ListByTeacher(ctx context.Context, teacherID uuid.UUID) ([]models.Booking, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var bookings []models.Booking
	err := db.Where("teacher_id = ?", teacherID).Order("date desc, slot_start desc").Find(&bookings).Error
	return bookings, mapError("list teacher bookings", err)
}

func (r *GormBookingRepository) ListCommittedOn(ctx context.Context, date string) ([]models.Booking, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var bookings []models.Booking
	err := db.Where("date = ? AND status IN ?", date, models.CommittedBookingStatuses).
		Order("slot_start asc").Find(&bookings).Error
	return bookings, mapError("list committed bookings", err)
}

func (r *GormBookingRepository) Transition(ctx context.Context, id uuid.UUID, from []models.BookingStatus, change models.BookingChange) (bool, error) {
	defer observability.ObserveRepository("Booking.Transition", time.Now())
	db, cancel := r.conn(ctx)
	defer cancel()

	res := db.Model(&models.Booking{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(changeColumns(change))
	if stderrors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return false, fmt.Errorf("transition booking: %w", pkgerrors.ErrSlotConflict)
	}
	if res.Error != nil {
		return false, mapError("transition booking", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormBookingRepository) TransitionByOrder(ctx context.Context, orderRef string, from []models.BookingStatus, change models.BookingChange) (bool, error) {
	defer observability.ObserveRepository("Booking.TransitionByOrder", time.Now())
	db, cancel := r.conn(ctx)
	defer cancel()

	res := db.Model(&models.Booking{}).
		Where("order_reference = ? AND status IN ?", orderRef, from).
		Updates(changeColumns(change))
	if res.Error != nil {
		return false, mapError("transition booking by order", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormBookingRepository) AttachOrder(ctx context.Context, id uuid.UUID, orderRef string, from []models.BookingStatus) (bool, error) {
	defer observability.ObserveRepository("Booking.AttachOrder", time.Now())
	db, cancel := r.conn(ctx)
	defer cancel()

	res := db.Model(&models.Booking{}).
		Where("id = ? AND status IN ? AND order_reference IS NULL", id, from).
		Update("order_reference", orderRef)
	if res.Error != nil {
		return false, mapError("attach order", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormBookingRepository) CancelCollisions(ctx context.Context, keep *models.Booking, reason string) (int64, error) {
	defer observability.ObserveRepository("Booking.CancelCollisions", time.Now())
	db, cancel := r.conn(ctx)
	defer cancel()

	res := db.Model(&models.Booking{}).
		Where("teacher_id = ? AND date = ? AND slot_start = ? AND slot_end = ? AND id <> ?",
			keep.TeacherID, keep.Date, keep.SlotStart, keep.SlotEnd, keep.ID).
		Where("status IN ?", []models.BookingStatus{models.BookingPending, models.BookingApproved}).
		Updates(map[string]interface{}{
			"status":          models.BookingCancelled,
			"reason":          reason,
			"hold_expires_at": nil,
		})
	return res.RowsAffected, mapError("cancel colliding bookings", res.Error)
}

func (r *GormBookingRepository) ExpireHolds(ctx context.Context, now time.Time) (int64, error) {
	defer observability.ObserveRepository("Booking.ExpireHolds", time.Now())
	db, cancel := r.conn(ctx)
	defer cancel()

	res := db.Model(&models.Booking{}).
		Where("status = ? AND hold_expires_at IS NOT NULL AND hold_expires_at <= ?", models.BookingPending, now).
		Updates(map[string]interface{}{
			"status":          models.BookingCancelled,
			"hold_expires_at": nil,
		})
	return res.RowsAffected, mapError("expire holds", res.Error)
}

func (r *GormBookingRepository) ExpireSlotHolds(ctx context.Context, teacherID uuid.UUID, date, start, end string, now time.Time) (int64, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	res := db.Model(&models.Booking{}).
		Where("teacher_id = ? AND date = ? AND slot_start = ? AND slot_end = ?", teacherID, date, start, end).
		Where("status = ? AND hold_expires_at IS NOT NULL AND hold_expires_at <= ?", models.BookingPending, now).
		Updates(map[string]interface{}{
			"status":          models.BookingCancelled,
			"hold_expires_at": nil,
		})
	return res.RowsAffected, mapError("expire slot holds", res.Error)
}

func (r *GormBookingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	res := db.Delete(&models.Booking{}, "id = ?", id)
	if res.Error != nil {
		return mapError("delete booking", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete booking: %w", pkgerrors.ErrNotFound)
	}
	return nil
}

func changeColumns(c models.BookingChange) map[string]interface{} {
	cols := map[string]interface{}{}
	if c.Status != "" {
		cols["status"] = c.Status
	}
	if c.Reason != nil {
		cols["reason"] = *c.Reason
	}
	if c.OrderReference != nil {
		cols["order_reference"] = *c.OrderReference
	}
	if c.PaymentReference != nil {
		cols["payment_reference"] = *c.PaymentReference
	}
	if c.RescheduledTo != nil {
		cols["rescheduled_to"] = *c.RescheduledTo
	}
	if c.RescheduledAt != nil {
		cols["rescheduled_at"] = *c.RescheduledAt
	}
	if c.PaidAt != nil {
		cols["paid_at"] = *c.PaidAt
	}
	if c.ClearHold {
		cols["hold_expires_at"] = nil
	}
	return cols
}
