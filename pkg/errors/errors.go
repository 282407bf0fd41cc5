package errors

import (
	"errors"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrSlotConflict      = errors.New("slot already booked")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrInvalidSignature  = errors.New("payment verification failed")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInternal          = errors.New("internal error")

	// ErrAlreadyRecorded is returned by the ledger when a booking's earning entry
	// already exists. It never reaches HTTP callers.
	ErrAlreadyRecorded = errors.New("ledger entry already recorded")
)
