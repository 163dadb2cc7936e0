package models

import "errors"

var (
	// ErrPermission is returned when the actor is not an administrator
	ErrPermission = errors.New("permission denied")
	// ErrNotFound is returned when a referenced user id is unknown
	ErrNotFound = errors.New("user not found")
	// ErrValidation is returned for unrecognized selection codes or action data
	ErrValidation = errors.New("validation failed")
	// ErrBlocked is returned when a blocked user starts a guarded flow
	ErrBlocked = errors.New("user is blocked")
	// ErrInvalidTransition is returned when an event does not apply to the current state
	ErrInvalidTransition = errors.New("invalid state transition")
)
