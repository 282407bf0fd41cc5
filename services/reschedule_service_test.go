package services

import (
	"context"
	"errors"
	"testing"

	"github.com/anjiri1684/tutor_ledger/models"
	pkgerrors "github.com/anjiri1684/tutor_ledger/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReschedule(t *testing.T) {
	ctx := context.Background()
	newSlot := models.TimeRange{Start: "14:00", End: "15:00"}

	paidBooking := func(t *testing.T, f *fixture) *models.Booking {
		b, err := f.hold(f.studentA, "2025-06-01", "10:00", "11:00")
		require.NoError(t, err)
		return f.pay(t, b, "PAY-1").Booking
	}

	t.Run("paid booking moves with links both ways", func(t *testing.T) {
		f := newFixture()
		b := paidBooking(t, f)

		moved, err := f.rescheduleSvc.Reschedule(ctx, RescheduleRequest{
			ActorID: f.studentA, BookingID: b.ID, Date: "2025-06-02", Slot: newSlot, Reason: "exam clash",
		})
		require.NoError(t, err)
		assert.Equal(t, models.BookingPaid, moved.Status)
		assert.Equal(t, "monday", moved.Day)
		require.NotNil(t, moved.RescheduledFrom)
		assert.Equal(t, b.ID, *moved.RescheduledFrom)
		assert.Equal(t, b.Price, moved.Price)

		original, err := f.bookingSvc.Get(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingRescheduled, original.Status)
		require.NotNil(t, original.RescheduledTo)
		assert.Equal(t, moved.ID, *original.RescheduledTo)
		assert.NotNil(t, original.RescheduledAt)
		assert.Len(t, f.sink.to(f.teacherID), 3)

		// The wallet is untouched by the move.
		assert.Equal(t, int64(1599), f.wallets.balance(f.teacherID))

		// The old slot is free again and the new one is taken.
		_, err = f.hold(f.studentB, "2025-06-01", "10:00", "11:00")
		assert.NoError(t, err)
		_, err = f.hold(f.studentB, "2025-06-02", "14:00", "15:00")
		assert.ErrorIs(t, err, pkgerrors.ErrSlotConflict)
	})

	t.Run("target slot already held", func(t *testing.T) {
		f := newFixture()
		b := paidBooking(t, f)
		_, err := f.hold(f.studentB, "2025-06-02", "14:00", "15:00")
		require.NoError(t, err)

		_, err = f.rescheduleSvc.Reschedule(ctx, RescheduleRequest{ActorID: f.teacherID, BookingID: b.ID, Date: "2025-06-02", Slot: newSlot})
		assert.ErrorIs(t, err, pkgerrors.ErrSlotConflict)

		original, err := f.bookingSvc.Get(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingPaid, original.Status)
	})

	t.Run("pending booking cannot be rescheduled", func(t *testing.T) {
		f := newFixture()
		b, err := f.hold(f.studentA, "2025-06-01", "10:00", "11:00")
		require.NoError(t, err)

		_, err = f.rescheduleSvc.Reschedule(ctx, RescheduleRequest{ActorID: f.studentA, BookingID: b.ID, Date: "2025-06-02", Slot: newSlot})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)
	})

	t.Run("same slot", func(t *testing.T) {
		f := newFixture()
		b := paidBooking(t, f)
		_, err := f.rescheduleSvc.Reschedule(ctx, RescheduleRequest{
			ActorID: f.studentA, BookingID: b.ID, Date: b.Date, Slot: models.TimeRange{Start: b.SlotStart, End: b.SlotEnd},
		})
		assert.ErrorIs(t, err, pkgerrors.ErrValidation)
	})

	t.Run("outsider", func(t *testing.T) {
		f := newFixture()
		b := paidBooking(t, f)
		_, err := f.rescheduleSvc.Reschedule(ctx, RescheduleRequest{ActorID: uuid.New(), BookingID: b.ID, Date: "2025-06-02", Slot: newSlot})
		assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
	})

	t.Run("failed transition removes the replacement", func(t *testing.T) {
		f := newFixture()
		b := paidBooking(t, f)
		before := f.bookings.count()
		f.bookings.failNext = errors.New("deadlock detected")

		_, err := f.rescheduleSvc.Reschedule(ctx, RescheduleRequest{ActorID: f.studentA, BookingID: b.ID, Date: "2025-06-02", Slot: newSlot})
		assert.Error(t, err)
		assert.Equal(t, before, f.bookings.count())

		original, err := f.bookingSvc.Get(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingPaid, original.Status)
	})

	t.Run("rescheduled booking cannot move again", func(t *testing.T) {
		f := newFixture()
		b := paidBooking(t, f)
		_, err := f.rescheduleSvc.Reschedule(ctx, RescheduleRequest{ActorID: f.studentA, BookingID: b.ID, Date: "2025-06-02", Slot: newSlot})
		require.NoError(t, err)

		_, err = f.rescheduleSvc.Reschedule(ctx, RescheduleRequest{ActorID: f.studentA, BookingID: b.ID, Date: "2025-06-03", Slot: newSlot})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)
	})
}
