package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrInvalidDocument          = errors.New("client document must be a JSON object")
	ErrInvalidAmount            = errors.New("spend amount must be a positive integer")
	ErrUnknownProduct           = errors.New("unknown product identifier")
	ErrInvalidPurchaseToken     = errors.New("purchase token is required")
	ErrPurchaseAlreadyProcessed = errors.New("purchase token already processed")
	ErrVerificationFailed       = errors.New("purchase verification failed")
	ErrProfileNotFound          = errors.New("profile not found")
	ErrUnauthorized             = errors.New("missing or invalid credentials")
	ErrInternalError            = errors.New("internal server error")
)

// InsufficientBalanceError is returned when a debit exceeds the locked
// current balance. It carries the balance observed inside the critical
// section so callers can react without a second read.
type InsufficientBalanceError struct {
	Balance   int64
	Requested int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %d, need %d", e.Balance, e.Requested)
}

// IsInvalidInput checks if an error is a client-input type error
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidDocument) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrUnknownProduct) ||
		errors.Is(err, ErrInvalidPurchaseToken)
}

// IsConflict checks if an error means the purchase token was already processed
func IsConflict(err error) bool {
	return errors.Is(err, ErrPurchaseAlreadyProcessed)
}
