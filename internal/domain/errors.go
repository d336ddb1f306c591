package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrQuoteUnavailable = errors.New("quote unavailable")
	ErrInvalidQuantity  = errors.New("invalid position quantity")
	ErrLockHeld         = errors.New("lock already held")
	ErrContextDone      = errors.New("context cancelled")
)
