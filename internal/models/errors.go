package models

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced event or reminder does not exist
// (or is not owned by the caller).
var ErrNotFound = errors.New("not found")

// InvalidTransitionError reports a timer operation attempted from a state
// that does not allow it. The event is left unmodified.
type InvalidTransitionError struct {
	Op     string
	Status TimerStatus
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid timer transition: cannot %s: %s (current status: %s)", e.Op, e.Reason, e.Status)
	}
	return fmt.Sprintf("invalid timer transition: cannot %s while timer is %s", e.Op, e.Status)
}

// ValidationError reports a malformed field on an incoming event or reminder.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}
