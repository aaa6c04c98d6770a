package common

import (
	"errors"
	"fmt"
)

// Error kinds. Every *Error unwraps to exactly one of these, so callers
// branch with errors.Is.
var (
	ErrValidation    = errors.New("validation error")
	ErrAuthorization = errors.New("authorization error")
	ErrConflict      = errors.New("conflict")
	ErrNotFound      = errors.New("not found")
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrLockTimeout        = errors.New("could not acquire lock in time")
	ErrStaleWrite         = errors.New("application was modified concurrently")
)

type Error struct {
	Kind      error
	Entity    string
	ID        any
	Message   string
	Retryable bool
	cause     error
}

func (e *Error) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.ID == nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Entity, e.Message)
	}
	return fmt.Sprintf("%s: %s %v: %s", e.Kind, e.Entity, e.ID, e.Message)
}

func (e *Error) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Kind, e.cause}
	}
	return []error{e.Kind}
}

func NewValidation(entity string, id any, format string, args ...any) error {
	return &Error{Kind: ErrValidation, Entity: entity, ID: id, Message: fmt.Sprintf(format, args...)}
}

func NewAuthorization(entity string, id any, format string, args ...any) error {
	return &Error{Kind: ErrAuthorization, Entity: entity, ID: id, Message: fmt.Sprintf(format, args...)}
}

func NewNotFound(entity string, id any) error {
	return &Error{Kind: ErrNotFound, Entity: entity, ID: id, Message: "does not exist"}
}

func NewConflict(entity string, id any, format string, args ...any) error {
	return &Error{Kind: ErrConflict, Entity: entity, ID: id, Message: fmt.Sprintf(format, args...)}
}

// NewTransitionConflict reports a state machine edge that does not exist.
func NewTransitionConflict(id any, from, to string) error {
	return &Error{
		Kind:    ErrConflict,
		Entity:  "application",
		ID:      id,
		Message: fmt.Sprintf("invalid transition %s -> %s", from, to),
		cause:   ErrInvalidTransition,
	}
}

// NewRetryableConflict is returned when a concurrent writer won the race or
// the row lock could not be taken. Callers may re-fetch and retry.
func NewRetryableConflict(entity string, id any, cause error) error {
	return &Error{
		Kind:      ErrConflict,
		Entity:    entity,
		ID:        id,
		Message:   cause.Error(),
		Retryable: true,
		cause:     cause,
	}
}

// Kind returns the error kind of err, or nil for internal failures.
func Kind(err error) error {
	for _, kind := range []error{ErrValidation, ErrAuthorization, ErrConflict, ErrNotFound} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
