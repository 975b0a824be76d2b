package errs

import (
	"errors"
	"fmt"
)

// Error kinds returned by the dispatch engine. Callers match them with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation error")
	ErrAgentUnavailable  = errors.New("agent unavailable")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrShiftViolation    = errors.New("shift violation")
	ErrAlreadyAssigned   = errors.New("already assigned")
	ErrInvalidTransition = errors.New("invalid transition")
)

// ErrTicketNotFound and ErrAgentNotFound are specific cases of ErrNotFound.
var (
	ErrTicketNotFound = fmt.Errorf("ticket %w", ErrNotFound)
	ErrAgentNotFound  = fmt.Errorf("agent %w", ErrNotFound)
)

// ValidationError describes a rejected field of a submission.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid returns a *ValidationError for field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

var kinds = []struct {
	err  error
	name string
}{
	{ErrNotFound, "not_found"},
	{ErrValidation, "validation_error"},
	{ErrAgentUnavailable, "agent_unavailable"},
	{ErrCapacityExceeded, "capacity_exceeded"},
	{ErrShiftViolation, "shift_violation"},
	{ErrAlreadyAssigned, "already_assigned"},
	{ErrInvalidTransition, "invalid_transition"},
}

// Kind returns a stable name for the error kind of err, or "internal" when
// err does not wrap one of the kinds above.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}
