package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anjiri1684/tutor_ledger/models"
	"github.com/anjiri1684/tutor_ledger/notifications"
	"github.com/anjiri1684/tutor_ledger/observability"
	pkgerrors "github.com/anjiri1684/tutor_ledger/pkg/errors"
	"github.com/anjiri1684/tutor_ledger/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const DefaultHoldTTL = 10 * time.Minute

type BookingConfig struct {
	HoldTTL  time.Duration
	Now      func() time.Time
	Location *time.Location
	// Currency is quoted on holds for courses that carry none.
	Currency string
}

// SlotChecker confirms a (date, slot) is offered and free before a hold is placed.
type SlotChecker interface {
	CheckOpen(ctx context.Context, teacherID uuid.UUID, date string, slot models.TimeRange) error
}

type HoldRequest struct {
	StudentID uuid.UUID        `json:"-"`
	TeacherID uuid.UUID        `json:"teacher_id" validate:"required"`
	CourseID  uuid.UUID        `json:"course_id" validate:"required"`
	Date      string           `json:"date" validate:"required,datetime=2006-01-02"`
	Day       string           `json:"day"`
	Slot      models.TimeRange `json:"slot" validate:"required"`
	Note      string           `json:"note" validate:"max=1000"`
}

// BookingService owns the booking lifecycle. Every status change goes through a
// guarded repository transition.
type BookingService struct {
	bookings  repository.BookingRepository
	directory repository.DirectoryRepository
	slots     SlotChecker
	notify    notifier
	ttl       time.Duration
	now       func() time.Time
	location  *time.Location
	currency  string
}

func NewBookingService(bookings repository.BookingRepository, directory repository.DirectoryRepository, sink notifications.Sink, slots SlotChecker, cfg BookingConfig) *BookingService {
	if cfg.HoldTTL <= 0 {
		cfg.HoldTTL = DefaultHoldTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &BookingService{
		bookings:  bookings,
		directory: directory,
		slots:     slots,
		notify:    notifier{sink: sink, directory: directory},
		ttl:       cfg.HoldTTL,
		now:       cfg.Now,
		location:  cfg.Location,
		currency:  cfg.Currency,
	}
}

// CreateHold places a pending booking on the slot. The live-slot unique index
// is the authority on conflicts; the lookups before the insert only produce a
// clearer error in the common case.
func (s *BookingService) CreateHold(ctx context.Context, req HoldRequest) (_ *models.Booking, err error) {
	ctx, span := tracer.Start(ctx, "CreateHold")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(
		attribute.String("teacher_id", req.TeacherID.String()),
		attribute.String("date", req.Date),
		attribute.String("slot", req.Slot.Start+"-"+req.Slot.End),
	)

	if req.StudentID == uuid.Nil || req.TeacherID == uuid.Nil || req.CourseID == uuid.Nil {
		return nil, validationErr("student, teacher and course are required")
	}
	if req.StudentID == req.TeacherID {
		return nil, validationErr("cannot book a session with yourself")
	}
	weekday, err := parseSlot(req.Date, req.Slot)
	if err != nil {
		return nil, err
	}
	day, err := resolveDay(req.Day, weekday)
	if err != nil {
		return nil, err
	}

	course, err := s.directory.GetCourse(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	if course.TeacherID != req.TeacherID {
		return nil, validationErr("course %s is not taught by teacher %s", req.CourseID, req.TeacherID)
	}

	now := s.now()
	if n, err := s.bookings.ExpireSlotHolds(ctx, req.TeacherID, req.Date, req.Slot.Start, req.Slot.End, now); err != nil {
		return nil, err
	} else if n > 0 {
		observability.HoldsExpired.Add(float64(n))
		slog.Info("expired stale holds before new hold", "teacher_id", req.TeacherID, "date", req.Date, "count", n)
	}

	if s.slots != nil {
		if err := s.slots.CheckOpen(ctx, req.TeacherID, req.Date, req.Slot); err != nil {
			return nil, err
		}
	} else if err := s.ensureFree(ctx, req.TeacherID, req.Date, req.Slot, now); err != nil {
		return nil, err
	}

	currency := course.Currency
	if currency == "" {
		currency = s.currency
	}
	expires := now.Add(s.ttl)
	booking := &models.Booking{
		StudentID:     req.StudentID,
		TeacherID:     req.TeacherID,
		CourseID:      req.CourseID,
		Date:          req.Date,
		Day:           day,
		SlotStart:     req.Slot.Start,
		SlotEnd:       req.Slot.End,
		Price:         course.Price,
		Currency:      currency,
		Status:        models.BookingPending,
		HoldExpiresAt: &expires,
	}
	if note := strings.TrimSpace(req.Note); note != "" {
		booking.Note = &note
	}
	if err := s.bookings.Create(ctx, booking); err != nil {
		if errors.Is(err, pkgerrors.ErrSlotConflict) {
			return nil, slotConflict(req.Date, req.Slot)
		}
		return nil, err
	}

	observability.BookingTransitions.WithLabelValues(string(models.BookingPending)).Inc()
	slog.Info("booking hold placed",
		"booking_id", booking.ID,
		"student_id", booking.StudentID,
		"teacher_id", booking.TeacherID,
		"date", booking.Date,
		"slot", booking.SlotStart+"-"+booking.SlotEnd,
		"hold_expires_at", expires)

	s.notify.send(ctx, booking.TeacherID, models.AudienceTeacher, "booking",
		"New booking request",
		fmt.Sprintf("%s requested %s on %s at %s-%s.",
			s.notify.userName(ctx, booking.StudentID), course.Title, booking.Date, booking.SlotStart, booking.SlotEnd),
		bookingLink(booking.ID))
	return booking, nil
}

func (s *BookingService) ensureFree(ctx context.Context, teacherID uuid.UUID, date string, slot models.TimeRange, now time.Time) error {
	live, err := s.bookings.FindLive(ctx, teacherID, date, slot.Start, slot.End)
	if err != nil {
		return err
	}
	for i := range live {
		if occupies(&live[i], now) {
			return slotConflict(date, slot)
		}
	}
	return nil
}

// Approve confirms a pending hold. Free sessions go straight to booked.
func (s *BookingService) Approve(ctx context.Context, teacherID, bookingID uuid.UUID) (_ *models.Booking, err error) {
	ctx, span := tracer.Start(ctx, "Approve")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("booking_id", bookingID.String()))

	b, err := s.ownedByTeacher(ctx, teacherID, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.BookingPending {
		return nil, transitionErr("booking is %s, only pending bookings can be approved", b.Status)
	}
	if b.HoldExpiresAt != nil && !b.HoldExpiresAt.After(s.now()) {
		return nil, transitionErr("booking hold expired at %s", b.HoldExpiresAt.Format(time.RFC3339))
	}

	to := models.BookingApproved
	if b.Price == 0 {
		to = models.BookingBooked
	}
	change := models.BookingChange{Status: to, ClearHold: true}
	if err := s.apply(ctx, b, []models.BookingStatus{models.BookingPending}, change); err != nil {
		return nil, err
	}

	body := fmt.Sprintf("Your session on %s at %s-%s was approved. Complete the payment to confirm it.", b.Date, b.SlotStart, b.SlotEnd)
	if to == models.BookingBooked {
		body = fmt.Sprintf("Your session on %s at %s-%s is confirmed.", b.Date, b.SlotStart, b.SlotEnd)
	}
	s.notify.send(ctx, b.StudentID, models.AudienceStudent, "booking", "Booking approved", body, bookingLink(b.ID))
	return b, nil
}

// Reject is the instructor declining a pending or approved booking.
func (s *BookingService) Reject(ctx context.Context, teacherID, bookingID uuid.UUID, reason string) (_ *models.Booking, err error) {
	ctx, span := tracer.Start(ctx, "Reject")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("booking_id", bookingID.String()))

	b, err := s.ownedByTeacher(ctx, teacherID, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.close(ctx, b, models.BookingRejected, reason); err != nil {
		return nil, err
	}
	s.notify.send(ctx, b.StudentID, models.AudienceStudent, "booking", "Booking rejected",
		fmt.Sprintf("Your session on %s at %s-%s was rejected: %s", b.Date, b.SlotStart, b.SlotEnd, *b.Reason),
		bookingLink(b.ID))
	return b, nil
}

// Cancel may be called by either party of a pending or approved booking.
func (s *BookingService) Cancel(ctx context.Context, actorID, bookingID uuid.UUID, reason string) (_ *models.Booking, err error) {
	ctx, span := tracer.Start(ctx, "Cancel")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("booking_id", bookingID.String()))

	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.StudentID != actorID && b.TeacherID != actorID {
		return nil, fmt.Errorf("booking %s: %w", bookingID, pkgerrors.ErrNotFound)
	}
	if err := s.close(ctx, b, models.BookingCancelled, reason); err != nil {
		return nil, err
	}

	recipient, audience := b.TeacherID, models.AudienceTeacher
	if actorID == b.TeacherID {
		recipient, audience = b.StudentID, models.AudienceStudent
	}
	s.notify.send(ctx, recipient, audience, "booking", "Booking cancelled",
		fmt.Sprintf("The session on %s at %s-%s was cancelled: %s", b.Date, b.SlotStart, b.SlotEnd, *b.Reason),
		bookingLink(b.ID))
	return b, nil
}

func (s *BookingService) close(ctx context.Context, b *models.Booking, to models.BookingStatus, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return validationErr("a reason is required")
	}
	change := models.BookingChange{Status: to, Reason: &reason, ClearHold: true}
	return s.apply(ctx, b, []models.BookingStatus{models.BookingPending, models.BookingApproved}, change)
}

// MarkPaid flips the booking holding orderRef to paid and cancels every other
// hold on the same slot. applied is false when the booking was already paid
// with the same payment reference, which makes provider retries harmless even
// after the session was rescheduled or completed.
func (s *BookingService) MarkPaid(ctx context.Context, orderRef, paymentRef string) (_ *models.Booking, applied bool, err error) {
	ctx, span := tracer.Start(ctx, "MarkPaid")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("order_reference", orderRef))

	now := s.now()
	change := models.BookingChange{
		Status:           models.BookingPaid,
		PaymentReference: &paymentRef,
		PaidAt:           &now,
		ClearHold:        true,
	}
	applied, err = s.bookings.TransitionByOrder(ctx, orderRef,
		[]models.BookingStatus{models.BookingPending, models.BookingApproved}, change)
	if err != nil {
		return nil, false, err
	}

	b, err := s.bookings.GetByOrderReference(ctx, orderRef)
	if err != nil {
		return nil, false, err
	}

	if !applied {
		if settledBy(b, paymentRef) {
			slog.Info("payment callback replayed", "booking_id", b.ID, "order_reference", orderRef)
			return b, false, nil
		}
		slog.Warn("payment received for inactive booking",
			"booking_id", b.ID,
			"order_reference", orderRef,
			"payment_reference", paymentRef,
			"status", b.Status)
		return nil, false, transitionErr("booking is %s and cannot be marked paid", b.Status)
	}

	observability.BookingTransitions.WithLabelValues(string(models.BookingPaid)).Inc()
	slog.Info("booking paid", "booking_id", b.ID, "order_reference", orderRef, "payment_reference", paymentRef)

	n, err := s.bookings.CancelCollisions(ctx, b, "slot was paid for by another booking")
	if err != nil {
		slog.Error("failed to cancel colliding holds", "booking_id", b.ID, "error", err)
	} else if n > 0 {
		observability.BookingTransitions.WithLabelValues(string(models.BookingCancelled)).Add(float64(n))
		slog.Info("colliding holds cancelled", "booking_id", b.ID, "count", n)
	}
	return b, true, nil
}

// settledBy reports whether b was already paid with paymentRef and has since
// stayed on the paid lineage (paid, or moved on to rescheduled or completed).
func settledBy(b *models.Booking, paymentRef string) bool {
	if b.PaymentReference == nil || *b.PaymentReference != paymentRef {
		return false
	}
	switch b.Status {
	case models.BookingPaid, models.BookingRescheduled, models.BookingCompleted:
		return true
	}
	return false
}

// MarkFailed records a provider-reported payment failure.
func (s *BookingService) MarkFailed(ctx context.Context, orderRef, paymentRef string) (_ *models.Booking, applied bool, err error) {
	ctx, span := tracer.Start(ctx, "MarkFailed")
	defer func() { endSpan(span, err) }()

	reason := "payment failed"
	change := models.BookingChange{Status: models.BookingFailed, Reason: &reason, ClearHold: true}
	if paymentRef != "" {
		change.PaymentReference = &paymentRef
	}
	applied, err = s.bookings.TransitionByOrder(ctx, orderRef,
		[]models.BookingStatus{models.BookingPending, models.BookingApproved}, change)
	if err != nil {
		return nil, false, err
	}
	b, err := s.bookings.GetByOrderReference(ctx, orderRef)
	if err != nil {
		return nil, false, err
	}
	if !applied {
		if b.Status == models.BookingFailed {
			return b, false, nil
		}
		return nil, false, transitionErr("booking is %s and cannot be marked failed", b.Status)
	}

	observability.BookingTransitions.WithLabelValues(string(models.BookingFailed)).Inc()
	slog.Warn("booking payment failed", "booking_id", b.ID, "order_reference", orderRef)
	s.notify.send(ctx, b.StudentID, models.AudienceStudent, "payment", "Payment failed",
		fmt.Sprintf("The payment for your session on %s at %s-%s did not go through.", b.Date, b.SlotStart, b.SlotEnd),
		bookingLink(b.ID))
	return b, true, nil
}

// Complete closes a confirmed session after it has ended.
func (s *BookingService) Complete(ctx context.Context, teacherID, bookingID uuid.UUID) (_ *models.Booking, err error) {
	ctx, span := tracer.Start(ctx, "Complete")
	defer func() { endSpan(span, err) }()

	b, err := s.ownedByTeacher(ctx, teacherID, bookingID)
	if err != nil {
		return nil, err
	}
	if !b.Status.IsCommitted() {
		return nil, transitionErr("booking is %s, only booked or paid sessions can be completed", b.Status)
	}
	end, err := time.ParseInLocation(dateLayout+" "+timeLayout, b.Date+" "+b.SlotEnd, s.location)
	if err != nil {
		return nil, fmt.Errorf("booking %s: %w: bad stored slot: %w", b.ID, pkgerrors.ErrInternal, err)
	}
	if s.now().Before(end) {
		return nil, transitionErr("session has not ended yet")
	}

	change := models.BookingChange{Status: models.BookingCompleted}
	if err := s.apply(ctx, b, models.CommittedBookingStatuses, change); err != nil {
		return nil, err
	}
	s.notify.send(ctx, b.StudentID, models.AudienceStudent, "booking", "Session completed",
		fmt.Sprintf("Your session on %s with %s is marked as completed.", b.Date, s.notify.userName(ctx, b.TeacherID)),
		bookingLink(b.ID))
	return b, nil
}

// AttachOrder stores the provider order reference on a booking that can still
// be paid and returns the reference the booking ends up with. When another
// request attached an order first, that order wins and orderRef is dropped.
func (s *BookingService) AttachOrder(ctx context.Context, bookingID uuid.UUID, orderRef string) (string, error) {
	payable := []models.BookingStatus{models.BookingPending, models.BookingApproved}
	applied, err := s.bookings.AttachOrder(ctx, bookingID, orderRef, payable)
	if err != nil {
		return "", err
	}
	if applied {
		return orderRef, nil
	}
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return "", err
	}
	if b.OrderReference != nil && (b.Status == models.BookingPending || b.Status == models.BookingApproved) {
		slog.Info("order already attached", "booking_id", bookingID, "order_reference", *b.OrderReference, "dropped", orderRef)
		return *b.OrderReference, nil
	}
	return "", transitionErr("booking is %s and can no longer be paid", b.Status)
}

// ExpireHolds cancels every pending hold whose TTL has elapsed.
func (s *BookingService) ExpireHolds(ctx context.Context) (_ int64, err error) {
	ctx, span := tracer.Start(ctx, "ExpireHolds")
	defer func() { endSpan(span, err) }()

	n, err := s.bookings.ExpireHolds(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		observability.HoldsExpired.Add(float64(n))
		observability.BookingTransitions.WithLabelValues(string(models.BookingCancelled)).Add(float64(n))
		slog.Info("expired booking holds", "count", n)
	}
	return n, nil
}

func (s *BookingService) Get(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return s.bookings.GetByID(ctx, id)
}

// GetFor returns the booking if userID is one of its parties.
func (s *BookingService) GetFor(ctx context.Context, userID, id uuid.UUID) (*models.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.StudentID != userID && b.TeacherID != userID {
		return nil, fmt.Errorf("booking %s: %w", id, pkgerrors.ErrNotFound)
	}
	return b, nil
}

func (s *BookingService) ListForStudent(ctx context.Context, studentID uuid.UUID) ([]models.Booking, error) {
	return s.bookings.ListByStudent(ctx, studentID)
}

func (s *BookingService) ListForTeacher(ctx context.Context, teacherID uuid.UUID) ([]models.Booking, error) {
	return s.bookings.ListByTeacher(ctx, teacherID)
}

// StartingBetween lists booked or paid sessions whose start falls in [from, to).
func (s *BookingService) StartingBetween(ctx context.Context, from, to time.Time) ([]models.Booking, error) {
	from, to = from.In(s.location), to.In(s.location)
	dates := []string{from.Format(dateLayout)}
	if d := to.Format(dateLayout); d != dates[0] {
		dates = append(dates, d)
	}

	var out []models.Booking
	for _, date := range dates {
		bookings, err := s.bookings.ListCommittedOn(ctx, date)
		if err != nil {
			return nil, err
		}
		for _, b := range bookings {
			start, err := time.ParseInLocation(dateLayout+" "+timeLayout, b.Date+" "+b.SlotStart, s.location)
			if err != nil {
				continue
			}
			if !start.Before(from) && start.Before(to) {
				out = append(out, b)
			}
		}
	}
	return out, nil
}

// SendReminder tells both parties that the session starts soon.
func (s *BookingService) SendReminder(ctx context.Context, b *models.Booking) {
	title := "Reminder: your session starts soon"
	body := fmt.Sprintf("%s is scheduled for %s at %s-%s.", s.notify.courseTitle(ctx, b.CourseID), b.Date, b.SlotStart, b.SlotEnd)
	s.notify.send(ctx, b.StudentID, models.AudienceStudent, "reminder", title, body, bookingLink(b.ID))
	s.notify.send(ctx, b.TeacherID, models.AudienceTeacher, "reminder", title, body, bookingLink(b.ID))
}

func (s *BookingService) ownedByTeacher(ctx context.Context, teacherID, bookingID uuid.UUID) (*models.Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.TeacherID != teacherID {
		return nil, fmt.Errorf("booking %s: %w", bookingID, pkgerrors.ErrNotFound)
	}
	return b, nil
}

// apply runs a guarded transition and mirrors it onto b. A guard miss is an
// InvalidTransition.
func (s *BookingService) apply(ctx context.Context, b *models.Booking, from []models.BookingStatus, change models.BookingChange) error {
	applied, err := s.bookings.Transition(ctx, b.ID, from, change)
	if err != nil {
		return err
	}
	if !applied {
		current := b.Status
		if fresh, err := s.bookings.GetByID(ctx, b.ID); err == nil {
			current = fresh.Status
		}
		return transitionErr("booking is %s and cannot move to %s", current, change.Status)
	}
	prev := b.Status
	change.Apply(b)
	observability.BookingTransitions.WithLabelValues(string(b.Status)).Inc()
	slog.Info("booking transitioned", "booking_id", b.ID, "from", prev, "to", b.Status)
	return nil
}
