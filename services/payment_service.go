package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anjiri1684/tutor_ledger/models"
	"github.com/anjiri1684/tutor_ledger/notifications"
	"github.com/anjiri1684/tutor_ledger/observability"
	"github.com/anjiri1684/tutor_ledger/payments"
	pkgerrors "github.com/anjiri1684/tutor_ledger/pkg/errors"
	"github.com/anjiri1684/tutor_ledger/repository"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

var validate = validator.New()

const (
	CallbackSuccess = "success"
	CallbackFailed  = "failed"
)

type VerifierConfig struct {
	Secret string
}

// PaymentCallback is the provider webhook body. Nothing in it is trusted until
// the signature checks out. Status is bound by the signature: a failure notice
// is signed over order|payment|failed, a success over order|payment.
type PaymentCallback struct {
	OrderReference   string `json:"order_reference" validate:"required,max=255"`
	PaymentReference string `json:"payment_reference" validate:"required,max=255"`
	Signature        string `json:"signature" validate:"required,hexadecimal,len=64"`
	Status           string `json:"status" validate:"omitempty,oneof=success failed"`
}

type VerificationResult struct {
	Booking  *models.Booking `json:"booking"`
	Applied  bool            `json:"applied"`
	Credited bool            `json:"credited"`
	Split    *Split          `json:"split,omitempty"`
}

type PaymentService struct {
	bookings *BookingService
	ledger   *LedgerService
	provider payments.Provider
	notify   notifier
	secret   string
}

func NewPaymentService(bookings *BookingService, ledger *LedgerService, provider payments.Provider, directory repository.DirectoryRepository, sink notifications.Sink, cfg VerifierConfig) *PaymentService {
	return &PaymentService{
		bookings: bookings,
		ledger:   ledger,
		provider: provider,
		notify:   notifier{sink: sink, directory: directory},
		secret:   cfg.Secret,
	}
}

// CreateIntent opens a provider order for the booking's quoted price. Asking
// again returns the order already attached to the booking.
func (s *PaymentService) CreateIntent(ctx context.Context, studentID, bookingID uuid.UUID) (_ *payments.Order, err error) {
	ctx, span := tracer.Start(ctx, "CreateIntent")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("booking_id", bookingID.String()))

	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.StudentID != studentID {
		return nil, fmt.Errorf("booking %s: %w", bookingID, pkgerrors.ErrNotFound)
	}
	if b.Status != models.BookingPending && b.Status != models.BookingApproved {
		return nil, transitionErr("booking is %s and cannot be paid", b.Status)
	}
	if b.Price <= 0 {
		return nil, validationErr("booking is free and needs no payment")
	}
	if b.OrderReference != nil {
		return &payments.Order{Reference: *b.OrderReference}, nil
	}

	order, err := s.provider.CreateOrder(ctx, b.Price, b.Currency, map[string]string{
		"booking_id":  b.ID.String(),
		"teacher_id":  b.TeacherID.String(),
		"description": s.notify.courseTitle(ctx, b.CourseID),
	})
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w: %w", pkgerrors.ErrInternal, err)
	}
	ref, err := s.bookings.AttachOrder(ctx, b.ID, order.Reference)
	if err != nil {
		return nil, err
	}
	if ref != order.Reference {
		return &payments.Order{Reference: ref}, nil
	}
	slog.Info("payment intent created", "booking_id", b.ID, "order_reference", order.Reference, "amount", b.Price)
	return order, nil
}

// Verify checks the callback signature and settles the booking. A valid
// success callback marks the booking paid and records the revenue split; a
// replay of the same callback returns the same booking without crediting again.
func (s *PaymentService) Verify(ctx context.Context, cb PaymentCallback) (_ *VerificationResult, err error) {
	ctx, span := tracer.Start(ctx, "VerifyPayment")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("order_reference", cb.OrderReference))

	if err := validate.Struct(cb); err != nil {
		observability.PaymentVerifications.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%w: %s", pkgerrors.ErrValidation, err.Error())
	}
	verify := payments.VerifySignature
	if cb.Status == CallbackFailed {
		verify = payments.VerifyFailureSignature
	}
	if !verify(s.secret, cb.OrderReference, cb.PaymentReference, cb.Signature) {
		observability.PaymentVerifications.WithLabelValues("invalid_signature").Inc()
		slog.Warn("payment signature mismatch", "order_reference", cb.OrderReference)
		return nil, pkgerrors.ErrInvalidSignature
	}

	if cb.Status == CallbackFailed {
		b, applied, err := s.bookings.MarkFailed(ctx, cb.OrderReference, cb.PaymentReference)
		if err != nil {
			observability.PaymentVerifications.WithLabelValues("rejected").Inc()
			return nil, err
		}
		observability.PaymentVerifications.WithLabelValues("failed").Inc()
		return &VerificationResult{Booking: b, Applied: applied}, nil
	}

	b, applied, err := s.bookings.MarkPaid(ctx, cb.OrderReference, cb.PaymentReference)
	if err != nil {
		observability.PaymentVerifications.WithLabelValues("rejected").Inc()
		return nil, err
	}

	// Runs on replays too: the earning entry gates the credit, so a crash
	// between mark-paid and credit is finished by the provider's retry.
	split, credited, err := s.ledger.RecordBookingPayment(ctx, b)
	if err != nil {
		observability.PaymentVerifications.WithLabelValues("ledger_error").Inc()
		return nil, err
	}

	if applied {
		observability.PaymentVerifications.WithLabelValues("verified").Inc()
		title := s.notify.courseTitle(ctx, b.CourseID)
		s.notify.send(ctx, b.TeacherID, models.AudienceTeacher, "payment", "New paid booking",
			fmt.Sprintf("%s paid for %s on %s at %s-%s.", s.notify.userName(ctx, b.StudentID), title, b.Date, b.SlotStart, b.SlotEnd),
			bookingLink(b.ID))
		s.notify.send(ctx, b.StudentID, models.AudienceStudent, "payment", "Payment received",
			fmt.Sprintf("Your session on %s at %s-%s is confirmed.", b.Date, b.SlotStart, b.SlotEnd),
			bookingLink(b.ID))
	} else {
		observability.PaymentVerifications.WithLabelValues("replayed").Inc()
	}
	return &VerificationResult{Booking: b, Applied: applied, Credited: credited, Split: split}, nil
}
