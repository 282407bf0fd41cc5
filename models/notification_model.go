package models

import "github.com/google/uuid"

type Audience string

const (
	AudienceStudent Audience = "student"
	AudienceTeacher Audience = "teacher"
	AudienceAdmin   Audience = "admin"
)

type Notification struct {
	UserID   uuid.UUID `json:"user_id"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Category string    `json:"category"`
	Audience Audience  `json:"audience"`
	Link     *string   `json:"link,omitempty"`
}
