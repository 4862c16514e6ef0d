package app

import (
	"errors"
	"fmt"
)

// Validation and authorization failures raised by the ledger. Each maps to a
// distinct HTTP treatment in the API layer: validation 400, authorization
// 403, not-found 404, rate limiting 429; everything else is surfaced as a
// generic 500 and logged with full detail.
var (
	ErrMissingRequiredFields  = errors.New("amount, date, type and savings account are required")
	ErrNonPositiveAmount      = errors.New("amount must be a positive number")
	ErrInvalidTransferType    = errors.New("invalid transfer type")
	ErrInvalidAmount          = errors.New("amount must be a valid number")
	ErrZeroAmount             = errors.New("amount must not be zero")
	ErrAccountNameRequired    = errors.New("account name is required")
	ErrNegativeInitialBalance = errors.New("initial balance must not be negative")
	ErrRateLimited            = errors.New("too many requests")
)

// RateLimitedError reports a rejected write together with the number of
// seconds after which the caller may retry. Matches ErrRateLimited under
// errors.Is.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many transfer requests, retry in %ds", e.RetryAfterSeconds)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
