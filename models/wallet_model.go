package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet is a materialized view over the teacher's Transaction history. It is
// mutated only through atomic increments and can be rebuilt from the ledger.
type Wallet struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TeacherID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"teacher_id"`
	Balance        int64     `gorm:"not null;default:0;check:balance >= 0" json:"balance"`
	TotalEarned    int64     `gorm:"not null;default:0" json:"total_earned"`
	TotalWithdrawn int64     `gorm:"not null;default:0" json:"total_withdrawn"`

	Withdrawals []Payout `gorm:"foreignkey:TeacherID;references:TeacherID" json:"withdrawals,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
