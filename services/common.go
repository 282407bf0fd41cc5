package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anjiri1684/tutor_ledger/models"
	"github.com/anjiri1684/tutor_ledger/notifications"
	pkgerrors "github.com/anjiri1684/tutor_ledger/pkg/errors"
	"github.com/anjiri1684/tutor_ledger/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("tutor-ledger/services")

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func validationErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", pkgerrors.ErrValidation, fmt.Sprintf(format, args...))
}

func transitionErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", pkgerrors.ErrInvalidTransition, fmt.Sprintf(format, args...))
}

func slotConflict(date string, slot models.TimeRange) error {
	return fmt.Errorf("%w: %s %s-%s", pkgerrors.ErrSlotConflict, date, slot.Start, slot.End)
}

// parseSlot checks a calendar date and a HH:MM range and returns the weekday
// name of the date.
func parseSlot(date string, slot models.TimeRange) (string, error) {
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return "", validationErr("date %q must be YYYY-MM-DD", date)
	}
	start, err := time.Parse(timeLayout, slot.Start)
	if err != nil {
		return "", validationErr("slot start %q must be HH:MM", slot.Start)
	}
	end, err := time.Parse(timeLayout, slot.End)
	if err != nil {
		return "", validationErr("slot end %q must be HH:MM", slot.End)
	}
	if !start.Before(end) {
		return "", validationErr("slot start must be before slot end")
	}
	return weekdayName(d), nil
}

func weekdayName(t time.Time) string {
	return strings.ToLower(t.Weekday().String())
}

// resolveDay fills in the weekday label, rejecting one that contradicts the date.
func resolveDay(given, fromDate string) (string, error) {
	if given == "" {
		return fromDate, nil
	}
	if !strings.EqualFold(given, fromDate) {
		return "", validationErr("day %q does not match date (%s)", given, fromDate)
	}
	return fromDate, nil
}

// notifier wraps the notification sink. Failures are logged and swallowed so
// they never undo the operation that triggered them.
type notifier struct {
	sink      notifications.Sink
	directory repository.DirectoryRepository
}

func (n notifier) send(ctx context.Context, userID uuid.UUID, audience models.Audience, category, title, body string, link *string) {
	if n.sink == nil {
		return
	}
	err := n.sink.Notify(ctx, models.Notification{
		UserID:   userID,
		Title:    title,
		Body:     body,
		Category: category,
		Audience: audience,
		Link:     link,
	})
	if err != nil {
		slog.Warn("notification not sent", "user_id", userID, "category", category, "error", err)
	}
}

func (n notifier) courseTitle(ctx context.Context, courseID uuid.UUID) string {
	if n.directory != nil {
		if c, err := n.directory.GetCourse(ctx, courseID); err == nil {
			return c.Title
		}
	}
	return "your session"
}

func (n notifier) userName(ctx context.Context, userID uuid.UUID) string {
	if n.directory != nil {
		if u, err := n.directory.GetUser(ctx, userID); err == nil {
			return u.FullName
		}
	}
	return "A student"
}

func bookingLink(id uuid.UUID) *string {
	link := "/bookings/" + id.String()
	return &link
}

func strPtr(s string) *string { return &s }
