package models

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingPending     BookingStatus = "pending"
	BookingApproved    BookingStatus = "approved"
	BookingBooked      BookingStatus = "booked"
	BookingPaid        BookingStatus = "paid"
	BookingCompleted   BookingStatus = "completed"
	BookingCancelled   BookingStatus = "cancelled"
	BookingRejected    BookingStatus = "rejected"
	BookingRescheduled BookingStatus = "rescheduled"
	BookingFailed      BookingStatus = "failed"
)

// LiveBookingStatuses are the statuses that occupy a slot. The partial unique
// index idx_bookings_live_slot (see database.Migrate) covers exactly this set.
var LiveBookingStatuses = []BookingStatus{BookingPending, BookingApproved, BookingBooked, BookingPaid}

// CommittedBookingStatuses hold a slot for good.
var CommittedBookingStatuses = []BookingStatus{BookingBooked, BookingPaid}

func (s BookingStatus) IsLive() bool {
	for _, l := range LiveBookingStatuses {
		if s == l {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsCommitted() bool {
	return s == BookingBooked || s == BookingPaid
}

type TimeRange struct {
	Start string `json:"start" validate:"required,datetime=15:04"`
	End   string `json:"end" validate:"required,datetime=15:04"`
}

type Booking struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	StudentID uuid.UUID `gorm:"type:uuid;not null;index" json:"student_id"`
	TeacherID uuid.UUID `gorm:"type:uuid;not null;index:idx_bookings_teacher_date,priority:1" json:"teacher_id"`
	CourseID  uuid.UUID `gorm:"type:uuid;not null" json:"course_id"`
	Date      string    `gorm:"size:10;not null;index:idx_bookings_teacher_date,priority:2" json:"date"`
	Day       string    `gorm:"size:10;not null" json:"day"`
	SlotStart string    `gorm:"size:5;not null" json:"slot_start"`
	SlotEnd   string    `gorm:"size:5;not null" json:"slot_end"`
	Note      *string   `gorm:"type:text" json:"note,omitempty"`

	Price    int64  `gorm:"not null;default:0" json:"price"`
	Currency string `gorm:"size:3;not null" json:"currency"`

	OrderReference   *string `gorm:"size:255;uniqueIndex" json:"order_reference,omitempty"`
	PaymentReference *string `gorm:"size:255" json:"payment_reference,omitempty"`

	Status BookingStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	Reason *string       `gorm:"type:text" json:"reason,omitempty"`

	RescheduledFrom *uuid.UUID `gorm:"type:uuid" json:"rescheduled_from,omitempty"`
	RescheduledTo   *uuid.UUID `gorm:"type:uuid" json:"rescheduled_to,omitempty"`
	RescheduledAt   *time.Time `json:"rescheduled_at,omitempty"`

	HoldExpiresAt *time.Time `gorm:"index" json:"hold_expires_at,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Booking) Slot() TimeRange {
	return TimeRange{Start: b.SlotStart, End: b.SlotEnd}
}

// SlotKey identifies the (date, start, end) cell a booking occupies.
func (b *Booking) SlotKey() string {
	return SlotKey(b.Date, b.SlotStart, b.SlotEnd)
}

func SlotKey(date, start, end string) string {
	return date + "|" + start + "|" + end
}

// BookingChange is the set of columns a guarded transition may write. Nil fields
// are left untouched.
type BookingChange struct {
	Status           BookingStatus
	Reason           *string
	OrderReference   *string
	PaymentReference *string
	RescheduledTo    *uuid.UUID
	RescheduledAt    *time.Time
	PaidAt           *time.Time
	ClearHold        bool
}

// Apply writes the change onto an in-memory booking.
func (c BookingChange) Apply(b *Booking) {
	if c.Status != "" {
		b.Status = c.Status
	}
	if c.Reason != nil {
		b.Reason = c.Reason
	}
	if c.OrderReference != nil {
		b.OrderReference = c.OrderReference
	}
	if c.PaymentReference != nil {
		b.PaymentReference = c.PaymentReference
	}
	if c.RescheduledTo != nil {
		b.RescheduledTo = c.RescheduledTo
	}
	if c.RescheduledAt != nil {
		b.RescheduledAt = c.RescheduledAt
	}
	if c.PaidAt != nil {
		b.PaidAt = c.PaidAt
	}
	if c.ClearHold {
		b.HoldExpiresAt = nil
	}
}
