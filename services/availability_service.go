package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/anjiri1684/tutor_ledger/models"
	"github.com/anjiri1684/tutor_ledger/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const LookaheadDays = 7

var weekdays = map[string]bool{
	"sunday": true, "monday": true, "tuesday": true, "wednesday": true,
	"thursday": true, "friday": true, "saturday": true,
}

type AvailabilityService struct {
	availability repository.AvailabilityRepository
	bookings     repository.BookingRepository
	now          func() time.Time
	location     *time.Location
}

func NewAvailabilityService(availability repository.AvailabilityRepository, bookings repository.BookingRepository, now func() time.Time, loc *time.Location) *AvailabilityService {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	return &AvailabilityService{availability: availability, bookings: bookings, now: now, location: loc}
}

// OpenSlots lists the teacher's bookable slots for the next LookaheadDays days,
// starting today.
func (s *AvailabilityService) OpenSlots(ctx context.Context, teacherID uuid.UUID) (_ []models.OpenSlot, err error) {
	ctx, span := tracer.Start(ctx, "OpenSlots")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("teacher_id", teacherID.String()))

	now := s.now().In(s.location)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.location)
	to := from.AddDate(0, 0, LookaheadDays-1)

	template, err := s.availability.GetTemplate(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	occupied, err := s.bookings.ListOccupying(ctx, teacherID, from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	return ResolveOpenSlots(from, LookaheadDays, template, occupied, now), nil
}

// CheckOpen reports whether (date, slot) is offered by the teacher's weekly
// template and not held by a live booking.
func (s *AvailabilityService) CheckOpen(ctx context.Context, teacherID uuid.UUID, date string, slot models.TimeRange) error {
	day, err := parseSlot(date, slot)
	if err != nil {
		return err
	}
	now := s.now().In(s.location)
	if date < now.Format(dateLayout) {
		return validationErr("date %s is in the past", date)
	}

	template, err := s.availability.GetTemplate(ctx, teacherID)
	if err != nil {
		return err
	}
	if !templateOffers(template, day, slot) {
		return validationErr("teacher does not offer %s %s-%s", day, slot.Start, slot.End)
	}

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

func (s *AvailabilityService) Template(ctx context.Context, teacherID uuid.UUID) ([]models.AvailabilityDay, error) {
	return s.availability.GetTemplate(ctx, teacherID)
}

func (s *AvailabilityService) SetTemplate(ctx context.Context, teacherID uuid.UUID, days []models.AvailabilityDay) error {
	seen := map[string]bool{}
	for i := range days {
		name := strings.ToLower(days[i].Day)
		if !weekdays[name] {
			return validationErr("unknown weekday %q", days[i].Day)
		}
		if seen[name] {
			return validationErr("weekday %q listed twice", days[i].Day)
		}
		seen[name] = true
		days[i].Day = name
		for _, sl := range days[i].Slots {
			if _, err := parseSlot("2000-01-01", models.TimeRange{Start: sl.StartTime, End: sl.EndTime}); err != nil {
				return err
			}
		}
	}
	return s.availability.ReplaceTemplate(ctx, teacherID, days)
}

// ResolveOpenSlots enumerates `days` calendar dates from `from`, takes each
// enabled weekday's slots from the template and drops every (date, slot)
// already held by a live booking. The result is de-duplicated and ordered by
// date then start time.
func ResolveOpenSlots(from time.Time, days int, template []models.AvailabilityDay, occupied []models.Booking, now time.Time) []models.OpenSlot {
	byDay := make(map[string]*models.AvailabilityDay, len(template))
	for i := range template {
		byDay[strings.ToLower(template[i].Day)] = &template[i]
	}

	taken := make(map[string]bool, len(occupied))
	for i := range occupied {
		if occupies(&occupied[i], now) {
			taken[occupied[i].SlotKey()] = true
		}
	}

	seen := map[string]bool{}
	open := []models.OpenSlot{}
	for i := 0; i < days; i++ {
		d := from.AddDate(0, 0, i)
		date := d.Format(dateLayout)
		name := weekdayName(d)

		day, ok := byDay[name]
		if !ok || !day.Enabled {
			continue
		}
		for _, sl := range day.Slots {
			key := models.SlotKey(date, sl.StartTime, sl.EndTime)
			if seen[key] || taken[key] {
				continue
			}
			seen[key] = true
			open = append(open, models.OpenSlot{Date: date, Day: name, Start: sl.StartTime, End: sl.EndTime})
		}
	}

	sort.SliceStable(open, func(i, j int) bool {
		if open[i].Date != open[j].Date {
			return open[i].Date < open[j].Date
		}
		return open[i].Start < open[j].Start
	})
	return open
}

// occupies reports whether b holds its slot at instant now. Expired pending
// holds no longer count even before the sweep cancels them.
func occupies(b *models.Booking, now time.Time) bool {
	switch b.Status {
	case models.BookingApproved, models.BookingBooked, models.BookingPaid:
		return true
	case models.BookingPending:
		return b.HoldExpiresAt == nil || b.HoldExpiresAt.After(now)
	}
	return false
}

func templateOffers(template []models.AvailabilityDay, day string, slot models.TimeRange) bool {
	for _, d := range template {
		if !strings.EqualFold(d.Day, day) || !d.Enabled {
			continue
		}
		for _, sl := range d.Slots {
			if sl.StartTime == slot.Start && sl.EndTime == slot.End {
				return true
			}
		}
	}
	return false
}
