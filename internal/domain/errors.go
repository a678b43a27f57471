package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: the chat id does not exist (or belongs to another user).
	ErrNotFound = errors.New("chat not found")

	// ErrConflict: an atomic create-if-absent or versioned update lost a race.
	// Callers inside this package retry the read once before surfacing it.
	ErrConflict = errors.New("concurrent update conflict")

	// ErrUnavailable: the persistence layer could not be reached. A failed
	// write is never reported as success.
	ErrUnavailable = errors.New("storage unavailable")
)

// ValidationError rejects bad input before any persistence attempt.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
