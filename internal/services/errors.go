package services

import "errors"

var (
	// ErrNotFound is returned when the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when a status move is not in the
	// transition table.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConflict is returned when a concurrent update won the race.
	ErrConflict = errors.New("conflicting concurrent update")
	// ErrAgentRequired is returned when a visit is started without an
	// assigned agent.
	ErrAgentRequired = errors.New("agent must be assigned first")
	// ErrAlreadyAssigned is returned when a visit already has an agent.
	ErrAlreadyAssigned = errors.New("agent already assigned")
	// ErrInvalidOTP is returned when the collection OTP does not match.
	ErrInvalidOTP = errors.New("invalid collection OTP")
)
