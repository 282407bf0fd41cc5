package models

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TxnPurchase       TransactionType = "purchase"
	TxnBookingPayment TransactionType = "booking_payment"
	TxnEarning        TransactionType = "earning"
	TxnWithdrawal     TransactionType = "withdrawal"
	TxnAdjustment     TransactionType = "adjustment"
)

type TransactionNature string

const (
	NatureCredit TransactionNature = "CREDIT"
	NatureDebit  TransactionNature = "DEBIT"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentFailed  PaymentStatus = "FAILED"
)

// Transaction is an append-only ledger entry. Only a PENDING withdrawal may be
// settled afterwards.
type Transaction struct {
	ID              uuid.UUID         `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TeacherID       uuid.UUID         `gorm:"type:uuid;not null;index" json:"teacher_id"`
	Type            TransactionType   `gorm:"size:20;not null;index" json:"type"`
	Nature          TransactionNature `gorm:"size:6;not null" json:"nature"`
	GrossAmount     int64             `gorm:"not null" json:"gross_amount"`
	InstructorShare int64             `gorm:"not null;default:0" json:"instructor_share"`
	PlatformFee     int64             `gorm:"not null;default:0" json:"platform_fee"`
	Currency        string            `gorm:"size:3" json:"currency"`
	PaymentMethod   string            `gorm:"size:30" json:"payment_method"`
	PaymentStatus   PaymentStatus     `gorm:"size:10;not null" json:"payment_status"`

	BookingID *uuid.UUID `gorm:"type:uuid" json:"booking_id,omitempty"`
	CourseID  *uuid.UUID `gorm:"type:uuid" json:"course_id,omitempty"`
	PayoutID  *uuid.UUID `gorm:"type:uuid;index" json:"payout_id,omitempty"`
	Reference *string    `gorm:"size:255" json:"reference,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
