package entity

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when no expense exists for the given id
	ErrNotFound = errors.New("expense not found")

	// ErrStorageUnavailable wraps failures of the backing store
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ValidationError reports user-correctable input problems.
type ValidationError struct {
	Fields []string
	Reason string
}

// NewMissingFieldsError builds a ValidationError for absent required fields.
func NewMissingFieldsError(fields ...string) *ValidationError {
	return &ValidationError{Fields: fields, Reason: "missing required fields"}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, strings.Join(e.Fields, ", "))
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Unavailable wraps a backend error so that errors.Is(err, ErrStorageUnavailable) holds.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
