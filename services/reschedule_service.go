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

type RescheduleRequest struct {
	ActorID   uuid.UUID        `json:"-"`
	BookingID uuid.UUID        `json:"-"`
	Date      string           `json:"date" validate:"required,datetime=2006-01-02"`
	Day       string           `json:"day"`
	Slot      models.TimeRange `json:"slot" validate:"required"`
	Reason    string           `json:"reason" validate:"max=1000"`
}

// RescheduleService moves a confirmed booking to a new slot. The original is
// kept as rescheduled and linked to its replacement both ways.
type RescheduleService struct {
	bookings repository.BookingRepository
	slots    SlotChecker
	notify   notifier
	now      func() time.Time
}

func NewRescheduleService(bookings repository.BookingRepository, directory repository.DirectoryRepository, slots SlotChecker, sink notifications.Sink, now func() time.Time) *RescheduleService {
	if now == nil {
		now = time.Now
	}
	return &RescheduleService{
		bookings: bookings,
		slots:    slots,
		notify:   notifier{sink: sink, directory: directory},
		now:      now,
	}
}

func (s *RescheduleService) Reschedule(ctx context.Context, req RescheduleRequest) (_ *models.Booking, err error) {
	ctx, span := tracer.Start(ctx, "Reschedule")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(
		attribute.String("booking_id", req.BookingID.String()),
		attribute.String("date", req.Date),
	)

	weekday, err := parseSlot(req.Date, req.Slot)
	if err != nil {
		return nil, err
	}
	day, err := resolveDay(req.Day, weekday)
	if err != nil {
		return nil, err
	}

	original, err := s.bookings.GetByID(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if original.StudentID != req.ActorID && original.TeacherID != req.ActorID {
		return nil, fmt.Errorf("booking %s: %w", req.BookingID, pkgerrors.ErrNotFound)
	}
	if !original.Status.IsCommitted() {
		return nil, transitionErr("booking is %s, only booked or paid sessions can be rescheduled", original.Status)
	}
	if original.Date == req.Date && original.SlotStart == req.Slot.Start && original.SlotEnd == req.Slot.End {
		return nil, validationErr("new slot is the same as the current one")
	}

	now := s.now()
	if _, err := s.bookings.ExpireSlotHolds(ctx, original.TeacherID, req.Date, req.Slot.Start, req.Slot.End, now); err != nil {
		return nil, err
	}
	if s.slots != nil {
		if err := s.slots.CheckOpen(ctx, original.TeacherID, req.Date, req.Slot); err != nil {
			return nil, err
		}
	}

	replacement := &models.Booking{
		StudentID:        original.StudentID,
		TeacherID:        original.TeacherID,
		CourseID:         original.CourseID,
		Date:             req.Date,
		Day:              day,
		SlotStart:        req.Slot.Start,
		SlotEnd:          req.Slot.End,
		Note:             original.Note,
		Price:            original.Price,
		Currency:         original.Currency,
		PaymentReference: original.PaymentReference,
		PaidAt:           original.PaidAt,
		Status:           original.Status,
		RescheduledFrom:  &original.ID,
	}
	if err := s.bookings.Create(ctx, replacement); err != nil {
		if errors.Is(err, pkgerrors.ErrSlotConflict) {
			return nil, slotConflict(req.Date, req.Slot)
		}
		return nil, err
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "rescheduled"
	}
	change := models.BookingChange{
		Status:        models.BookingRescheduled,
		Reason:        &reason,
		RescheduledTo: &replacement.ID,
		RescheduledAt: &now,
	}
	applied, err := s.bookings.Transition(ctx, original.ID, models.CommittedBookingStatuses, change)
	if err == nil && !applied {
		err = transitionErr("booking changed while rescheduling")
	}
	if err != nil {
		if derr := s.bookings.Delete(ctx, replacement.ID); derr != nil {
			slog.Error("orphan replacement booking left behind",
				"booking_id", original.ID, "replacement_id", replacement.ID, "error", derr)
		}
		return nil, err
	}

	observability.BookingTransitions.WithLabelValues(string(models.BookingRescheduled)).Inc()
	slog.Info("booking rescheduled",
		"booking_id", original.ID,
		"replacement_id", replacement.ID,
		"from", original.Date+" "+original.SlotStart,
		"to", replacement.Date+" "+replacement.SlotStart)

	recipient, audience := original.TeacherID, models.AudienceTeacher
	if req.ActorID == original.TeacherID {
		recipient, audience = original.StudentID, models.AudienceStudent
	}
	s.notify.send(ctx, recipient, audience, "booking", "Session rescheduled",
		fmt.Sprintf("The session on %s at %s-%s moved to %s at %s-%s.",
			original.Date, original.SlotStart, original.SlotEnd, replacement.Date, replacement.SlotStart, replacement.SlotEnd),
		bookingLink(replacement.ID))
	return replacement, nil
}
