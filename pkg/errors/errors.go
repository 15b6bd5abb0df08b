// Package errors provides error wrapping utilities for context-aware error messages
// and the sentinel errors shared across packages.
package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a form entry does not exist.
	ErrNotFound = stderrors.New("not found")
	// ErrNoEntries is returned when an operation needs at least one entry.
	ErrNoEntries = stderrors.New("no entries selected for export")
	// ErrValidation marks user input that cannot be saved.
	ErrValidation = stderrors.New("validation failed")
	// ErrUnsupportedField is returned when a field does not exist on a form section.
	ErrUnsupportedField = stderrors.New("unsupported field")
)

// Wrap wraps an error with additional context information.
// If err is nil, it returns nil without wrapping.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Validation returns an error wrapping ErrValidation with the given message.
func Validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
