package neograph

import (
	"errors"
	"fmt"
)

// ErrNotFound is a sentinel error returned by Find operations when no record
// matching the criteria is found in the database.
var ErrNotFound = errors.New("neograph: entity not found")

// ErrRelationConstrained is returned when a relation already constrained for one
// mode (single parent or eager batch) is constrained for the other.
var ErrRelationConstrained = errors.New("neograph: relation already constrained")

// NotFoundError reports the schema and key of a failed lookup. It matches ErrNotFound.
type NotFoundError struct {
	Schema string
	Key    any
}

func (e *NotFoundError) Error() string {
	if e.Key == nil {
		return fmt.Sprintf("neograph: %s not found", e.Schema)
	}
	return fmt.Sprintf("neograph: %s %v not found", e.Schema, e.Key)
}

// Is makes errors.Is(err, ErrNotFound) hold.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IsNotFound returns a boolean indicating whether the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// DeclarationError reports a relation that cannot be built from its declaration:
// an unknown name or a related schema missing from the registry.
type DeclarationError struct {
	Schema   string
	Relation string
	Reason   string
}

func (e *DeclarationError) Error() string {
	return fmt.Sprintf("neograph: relation %s.%s: %s", e.Schema, e.Relation, e.Reason)
}

// IsDeclarationError returns a boolean indicating whether the error is a declaration error.
func IsDeclarationError(err error) bool {
	if err == nil {
		return false
	}
	var e *DeclarationError
	return errors.As(err, &e)
}

// AbortedError is returned when an observer vetoes a write.
type AbortedError struct {
	Event  Event
	Schema string
	Err    error
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("neograph: %s %s aborted: %v", e.Event, e.Schema, e.Err)
}

func (e *AbortedError) Unwrap() error { return e.Err }

// IsAborted returns a boolean indicating whether the error is an aborted write.
func IsAborted(err error) bool {
	if err == nil {
		return false
	}
	var e *AbortedError
	return errors.As(err, &e)
}
