package sched

import "errors"

var (
	// ErrCapacityExceeded is returned when the fixed task or timer table is
	// full. Recoverable: free a slot first.
	ErrCapacityExceeded = errors.New("sched: capacity exceeded")
	// ErrUnknownTask is returned for an id that is not registered (or whose
	// slot has already been reclaimed).
	ErrUnknownTask = errors.New("sched: unknown task")
	// ErrUnknownTimer is returned for an invalid timer id.
	ErrUnknownTimer = errors.New("sched: unknown timer")
	// ErrInvalidPeriod rejects a zero or negative period (or slice) at
	// creation or reconfiguration time.
	ErrInvalidPeriod = errors.New("sched: invalid period")
	// ErrDuplicateName is returned when a task or timer name is already taken.
	ErrDuplicateName = errors.New("sched: duplicate name")
	// ErrEmergencyBacklog is returned when the bounded emergency channel is
	// full and the signal was dropped.
	ErrEmergencyBacklog = errors.New("sched: emergency backlog full")
)
