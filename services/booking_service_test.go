package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/anjiri1684/tutor_ledger/models"
	"github.com/anjiri1684/tutor_ledger/payments"
	pkgerrors "github.com/anjiri1684/tutor_ledger/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pay runs the student through intent creation and a signed success callback.
func (f *fixture) pay(t *testing.T, b *models.Booking, paymentRef string) *VerificationResult {
	t.Helper()
	ctx := context.Background()
	order, err := f.paymentSvc.CreateIntent(ctx, b.StudentID, b.ID)
	require.NoError(t, err)
	res, err := f.paymentSvc.Verify(ctx, PaymentCallback{
		OrderReference:   order.Reference,
		PaymentReference: paymentRef,
		Signature:        payments.Sign(testSecret, order.Reference, paymentRef),
		Status:           CallbackSuccess,
	})
	require.NoError(t, err)
	return res
}

func TestCreateHold(t *testing.T) {
	ctx := context.Background()

	t.Run("places a pending hold with the course price", func(t *testing.T) {
		f := newFixture()
		b, err := f.hold(f.studentA, "2025-06-01", "10:00", "11:00")
		require.NoError(t, err)

		assert.Equal(t, models.BookingPending, b.Status)
		assert.Equal(t, "sunday", b.Day)
		assert.Equal(t, int64(1999), b.Price)
		assert.Equal(t, "INR", b.Currency)
		require.NotNil(t, b.HoldExpiresAt)
		assert.Equal(t, f.clock.Now().Add(DefaultHoldTTL), *b.HoldExpiresAt)
		assert.Len(t, f.sink.to(f.teacherID), 1)
	})

	t.Run("course without a currency quotes the default", func(t *testing.T) {
		f := newFixture()
		f.course.Currency = ""
		b, err := f.hold(f.studentA, "2025-06-01", "10:00", "11:00")
		require.NoError(t, err)
		assert.Equal(t, "USD", b.Currency)
	})

	t.Run("second hold on a live slot conflicts", func(t *testing.T) {
		f := newFixture()
		_, err := f.hold(f.studentA, "2025-06-01", "10:00", "11:00")
		require.NoError(t, err)

		_, err = f.hold(f.studentB, "2025-06-01", "10:00", "11:00")
		assert.ErrorIs(t, err, pkgerrors.ErrSlotConflict)
		assert.Equal(t, 1, f.bookings.count())
	})

	t.Run("expired hold frees the slot", func(t *testing.T) {
		f := newFixture()
		first, err := f.hold(f.studentA, "2025-06-01", "10:00", "11:00")
		require.NoError(t, err)

		f.clock.Advance(11 * time.Minute)
		second, err := f.hold(f.studentB, "2025-06-01", "10:00", "11:00")
		require.NoError(t, err)
		assert.Equal(t, models.BookingPending, second.Status)

		old, err := f.bookingSvc.Get(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingCancelled, old.Status)
	})

	t.Run("validation", func(t *testing.T) {
		f := newFixture()
		cases := []struct {
			name string
			req  HoldRequest
		}{
			{"bad date", HoldRequest{StudentID: f.studentA, TeacherID: f.teacherID, CourseID: f.course.ID, Date: "2025-13-01", Slot: models.TimeRange{Start: "10:00", End: "11:00"}}},
			{"start after end", HoldRequest{StudentID: f.studentA, TeacherID: f.teacherID, CourseID: f.course.ID, Date: "2025-06-01", Slot: models.TimeRange{Start: "11:00", End: "10:00"}}},
			{"wrong weekday", HoldRequest{StudentID: f.studentA, TeacherID: f.teacherID, CourseID: f.course.ID, Date: "2025-06-01", Day: "monday", Slot: models.TimeRange{Start: "10:00", End: "11:00"}}},
			{"self booking", HoldRequest{StudentID: f.teacherID, TeacherID: f.teacherID, CourseID: f.course.ID, Date: "2025-06-01", Slot: models.TimeRange{Start: "10:00", End: "11:00"}}},
			{"course of another teacher", HoldRequest{StudentID: f.studentA, TeacherID: uuid.New(), CourseID: f.course.ID, Date: "2025-06-01", Slot: models.TimeRange{Start: "10:00", End: "11:00"}}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := f.bookingSvc.CreateHold(ctx, tc.req)
				assert.ErrorIs(t, err, pkgerrors.ErrValidation)
			})
		}
		assert.Equal(t, 0, f.bookings.count())
	})

	t.Run("unknown course", func(t *testing.T) {
		f := newFixture()
		_, err := f.bookingSvc.CreateHold(ctx, HoldRequest{
			StudentID: f.studentA, TeacherID: f.teacherID, CourseID: uuid.New(),
			Date: "2025-06-01", Slot: models.TimeRange{Start: "10:00", End: "11:00"},
		})
		assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
	})
}

func TestCreateHoldConcurrentSingleWinner(t *testing.T) {
	f := newFixture()
	const n = 64

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.hold(uuid.New(), "2025-06-01", "10:00", "11:00")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case assert.ErrorIs(t, err, pkgerrors.ErrSlotConflict):
				conflicts++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, conflicts)
	assert.Equal(t, 1, f.bookings.count())
}

func TestApprove(t *testing.T) {
	ctx := context.Background()

	t.Run("priced booking becomes approved", func(t *testing.T) {
		f := newFixture()
		b, err := f.hold(f.studentA, "2025-06-01", "10:00", "11:00")
		require.NoError(t, err)

		got, err := f.bookingSvc.Approve(ctx, f.teacherID, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingApproved, got.Status)
		assert.Nil(t, got.HoldExpiresAt)
		assert.Len(t, f.sink.to(f.studentA), 1)
	})

	t.Run("free booking goes straight to booked", func(t *testing.T) {
		f := newFixture()
		f.course.Price = 0
		b, err := f.hold(f.studentA, "2025-06-01", "10:00", "11:00")
		require.NoError(t, err)

		got, err := f.bookingSvc.Approve(ctx, f.teacherID, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingBooked, got.Status)
	})

	t.Run("only the booking's teacher", func(t *testing.T) {
		f := newFixture()
		b, err := f.hold(f.studentA, "2025-06-01", "10:00", "11:00")
		require.NoError(t, err)

		_, err = f.bookingSvc.Approve(ctx, uuid.New(), b.ID)
		assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
	})

	t.Run("expired hold cannot be approved", func(t *testing.T) {
		f := newFixture()
		b, err := f.hold(f.studentA, "2025-06-01", "10:00", "11:00")
		require.NoError(t, err)

		f.clock.Advance(10 * time.Minute)
		_, err = f.bookingSvc.Approve(ctx, f.teacherID, b.ID)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)
	})

	t.Run("approving twice", func(t *testing.T) {
		f := newFixture()
		b, err := f.hold(f.studentA, "2025-06-01", "10:00", "11:00")
		require.NoError(t, err)
		_, err = f.bookingSvc.Approve(ctx, f.teacherID, b.ID)
		require.NoError(t, err)

		_, err = f.bookingSvc.Approve(ctx, f.teacherID, b.ID)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)
	})
}

func TestRejectAndCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("reject needs a reason", func(t *testing.T) {
		f := newFixture()
		b, err := f.hold(f.studentA, "2025-06-01", "10:00", "11:00")
		require.NoError(t, err)

		_, err = f.bookingSvc.Reject(ctx, f.teacherID, b.ID, "   ")
		assert.ErrorIs(t, err, pkgerrors.ErrValidation)

		got, err := f.bookingSvc.Reject(ctx, f.teacherID, b.ID, "not available")
		require.NoError(t, err)
		assert.Equal(t, models.BookingRejected, got.Status)
		require.NotNil(t, got.Reason)
		assert.Equal(t, "not available", *got.Reason)
	})

	t.Run("student cancels approved booking and the slot reopens", func(t *testing.T) {
		f := newFixture()
		b, err := f.hold(f.studentA, "2025-06-01", "10:00", "11:00")
		require.NoError(t, err)
		_, err = f.bookingSvc.Approve(ctx, f.teacherID, b.ID)
		require.NoError(t, err)

		got, err := f.bookingSvc.Cancel(ctx, f.studentA, b.ID, "changed plans")
		require.NoError(t, err)
		assert.Equal(t, models.BookingCancelled, got.Status)
		assert.NotEmpty(t, f.sink.to(f.teacherID))

		_, err = f.hold(f.studentB, "2025-06-01", "10:00", "11:00")
		assert.NoError(t, err)
	})

	t.Run("strangers cannot cancel", func(t *testing.T) {
		f := newFixture()
		b, err := f.hold(f.studentA, "2025-06-01", "10:00", "11:00")
		require.NoError(t, err)

		_, err = f.bookingSvc.Cancel(ctx, f.studentB, b.ID, "mine now")
		assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
	})

	t.Run("paid booking cannot be cancelled", func(t *testing.T) {
		f := newFixture()
		b, err := f.hold(f.studentA, "2025-06-01", "10:00", "11:00")
		require.NoError(t, err)
		f.pay(t, b, "PAY-1")

		_, err = f.bookingSvc.Cancel(ctx, f.studentA, b.ID, "too late")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)
	})
}

func TestMarkPaidCancelsCollidingHolds(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	first, err := f.hold(f.studentA, "2025-06-01", "10:00", "11:00")
	require.NoError(t, err)
	order, err := f.paymentSvc.CreateIntent(ctx, f.studentA, first.ID)
	require.NoError(t, err)

	// A colliding hold written around the slot index.
	f.bookings.mu.Lock()
	stale := *f.bookings.rows[first.ID]
	f.bookings.mu.Unlock()
	stale.ID = uuid.New()
	stale.StudentID = f.studentB
	stale.OrderReference = nil
	stale.HoldExpiresAt = nil
	f.bookings.mu.Lock()
	f.bookings.rows[stale.ID] = &stale
	f.bookings.order = append(f.bookings.order, stale.ID)
	f.bookings.mu.Unlock()

	paid, applied, err := f.bookingSvc.MarkPaid(ctx, order.Reference, "PAY-1")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, models.BookingPaid, paid.Status)

	other, err := f.bookingSvc.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, other.Status)
}

func TestComplete(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.course.Price = 0

	b, err := f.hold(f.studentA, "2025-06-01", "10:00", "11:00")
	require.NoError(t, err)

	_, err = f.bookingSvc.Complete(ctx, f.teacherID, b.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition, "pending sessions cannot complete")

	_, err = f.bookingSvc.Approve(ctx, f.teacherID, b.ID)
	require.NoError(t, err)

	_, err = f.bookingSvc.Complete(ctx, f.teacherID, b.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition, "session has not ended")

	f.clock.Advance(2*24*time.Hour + 2*time.Hour)
	got, err := f.bookingSvc.Complete(ctx, f.teacherID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCompleted, got.Status)
}

func TestExpireHolds(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	stale, err := f.hold(f.studentA, "2025-06-01", "10:00", "11:00")
	require.NoError(t, err)
	f.clock.Advance(5 * time.Minute)
	fresh, err := f.hold(f.studentB, "2025-06-01", "11:00", "12:00")
	require.NoError(t, err)
	approved, err := f.hold(f.studentB, "2025-06-01", "12:00", "13:00")
	require.NoError(t, err)
	_, err = f.bookingSvc.Approve(ctx, f.teacherID, approved.ID)
	require.NoError(t, err)

	f.clock.Advance(6 * time.Minute)
	n, err := f.bookingSvc.ExpireHolds(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, _ := f.bookingSvc.Get(ctx, stale.ID)
	assert.Equal(t, models.BookingCancelled, got.Status)
	got, _ = f.bookingSvc.Get(ctx, fresh.ID)
	assert.Equal(t, models.BookingPending, got.Status)
	got, _ = f.bookingSvc.Get(ctx, approved.ID)
	assert.Equal(t, models.BookingApproved, got.Status)

	n, err = f.bookingSvc.ExpireHolds(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStartingBetween(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.course.Price = 0

	for _, slot := range [][2]string{{"09:30", "10:00"}, {"10:00", "11:00"}, {"11:00", "12:00"}} {
		b, err := f.hold(f.studentA, "2025-05-30", slot[0], slot[1])
		require.NoError(t, err)
		_, err = f.bookingSvc.Approve(ctx, f.teacherID, b.ID)
		require.NoError(t, err)
	}
	_, err := f.hold(f.studentB, "2025-05-30", "10:30", "11:00")
	require.NoError(t, err)

	from := time.Date(2025, 5, 30, 10, 0, 0, 0, time.UTC)
	got, err := f.bookingSvc.StartingBetween(ctx, from, from.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "10:00", got[0].SlotStart)
}
