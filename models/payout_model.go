package models

import (
	"time"

	"github.com/google/uuid"
)

type PayoutStatus string

const (
	PayoutPending  PayoutStatus = "PENDING"
	PayoutApproved PayoutStatus = "APPROVED"
	PayoutRejected PayoutStatus = "REJECTED"
)

type PayoutMethod string

const (
	MethodBank   PayoutMethod = "bank"
	MethodUPI    PayoutMethod = "upi"
	MethodPayPal PayoutMethod = "paypal"
)

type PayoutDetails struct {
	AccountHolder string `gorm:"size:255" json:"account_holder,omitempty"`
	AccountNumber string `gorm:"size:64" json:"account_number,omitempty"`
	BankCode      string `gorm:"size:32" json:"bank_code,omitempty"`
	UPIID         string `gorm:"size:255" json:"upi_id,omitempty"`
	PayPalEmail   string `gorm:"size:255" json:"paypal_email,omitempty"`
}

type Payout struct {
	ID            uuid.UUID     `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TeacherID     uuid.UUID     `gorm:"type:uuid;not null;index:idx_payouts_teacher_status,priority:1" json:"teacher_id"`
	Amount        int64         `gorm:"not null" json:"amount"`
	Method        PayoutMethod  `gorm:"size:10;not null" json:"method"`
	Details       PayoutDetails `gorm:"embedded;embeddedPrefix:details_" json:"details"`
	Status        PayoutStatus  `gorm:"size:10;not null;default:'PENDING';index:idx_payouts_teacher_status,priority:2;index" json:"status"`
	AdminNote     *string       `gorm:"type:text" json:"admin_note,omitempty"`
	TransactionID *uuid.UUID    `gorm:"type:uuid" json:"transaction_id,omitempty"`
	RequestedAt   time.Time     `gorm:"not null" json:"requested_at"`
	ProcessedAt   *time.Time    `json:"processed_at,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
