// Package errs defines the error taxonomy shared by the domain packages.
//
// Every concrete error matches exactly one of the sentinels below via
// errors.Is, so callers (and the HTTP layer) can classify failures without
// knowing which package produced them.
package errs

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrValidation marks input rejected at construction time.
	ErrValidation = errors.New("validation failed")
	// ErrInvariant marks an operation that would break a domain invariant,
	// such as a money subtraction going below zero.
	ErrInvariant = errors.New("invariant violated")
	// ErrNotFound marks a reference to an entity that does not exist.
	ErrNotFound = errors.New("not found")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

// Validation returns a *ValidationError for the given field.
func Validation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// InvariantViolation describes an operation refused to keep the model valid.
type InvariantViolation struct {
	Op     string
	Reason string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// Is reports whether target is ErrInvariant.
func (e *InvariantViolation) Is(target error) bool {
	return target == ErrInvariant
}

// NotFoundError indicates that an entity of the given kind does not exist.
type NotFoundError struct {
	Kind string
	ID   string
	// Sentinel is an optional kind-specific sentinel that the error also matches.
	Sentinel error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found with id: %s", e.Kind, e.ID)
}

// Is reports whether target is ErrNotFound or the kind-specific sentinel.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound || (e.Sentinel != nil && target == e.Sentinel)
}
