package domain

import "errors"

// Recoverable lifecycle errors. Every one of these is returned to the caller
// as a typed result and mapped to a stable HTTP error code; none is fatal.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("no longer actionable from its current state")
	ErrNotAuthorized     = errors.New("principal is not allowed to perform this action")
	ErrInsufficientFunds = errors.New("insufficient available balance")
	ErrDuplicateHold     = errors.New("a hold already exists for this booking")
	ErrNothingToRefund   = errors.New("no unconsumed hold to refund")
	ErrNothingToSettle   = errors.New("no unconsumed hold to settle")
	ErrNotJoinable       = errors.New("session is outside its readiness window")
	ErrSlotTaken         = errors.New("tutor already has a booking at an overlapping slot")
	ErrInvalidInput      = errors.New("invalid input")
)
