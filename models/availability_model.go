package models

import (
	"github.com/google/uuid"
)

// AvailabilityDay is one weekday of a teacher's weekly template.
type AvailabilityDay struct {
	ID        uuid.UUID          `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TeacherID uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex:idx_availability_teacher_day" json:"-"`
	Day       string             `gorm:"size:10;not null;uniqueIndex:idx_availability_teacher_day" json:"day"`
	Enabled   bool               `gorm:"not null;default:false" json:"enabled"`
	Slots     []AvailabilitySlot `gorm:"foreignkey:DayID;constraint:OnDelete:CASCADE" json:"slots"`
}

type AvailabilitySlot struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"-"`
	DayID     uuid.UUID `gorm:"type:uuid;not null;index" json:"-"`
	StartTime string    `gorm:"size:5;not null" json:"start"`
	EndTime   string    `gorm:"size:5;not null" json:"end"`
}

// OpenSlot is a bookable (date, slot) pair produced by the availability resolver.
type OpenSlot struct {
	Date  string `json:"date"`
	Day   string `json:"day"`
	Start string `json:"start"`
	End   string `json:"end"`
}
