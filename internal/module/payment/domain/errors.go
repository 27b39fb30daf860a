package domain

import "errors"

// Domain errors.
var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidState           = errors.New("invalid state")
	ErrAmountExceedsAvailable = errors.New("amount exceeds available")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrUpstream               = errors.New("upstream gateway error")
	ErrMalformedPayload       = errors.New("malformed payload")
	ErrLockNotAcquired        = errors.New("lock not acquired")
	ErrValidation             = errors.New("validation failed")
)
