package cypher

import (
	"errors"
	"fmt"
)

// ReferenceError is recorded when a query refers to a placeholder it never
// declared, or declares one twice.
type ReferenceError struct {
	Identifier string
	Duplicate  bool
}

func (e *ReferenceError) Error() string {
	if e.Duplicate {
		return fmt.Sprintf("cypher: identifier %q already declared", e.Identifier)
	}
	return fmt.Sprintf("cypher: unknown identifier %q", e.Identifier)
}

// IsReferenceError returns true if err is, or wraps, a ReferenceError.
func IsReferenceError(err error) bool {
	var e *ReferenceError
	return errors.As(err, &e)
}

// OperatorError is recorded for a comparison operator the grammar does not know.
type OperatorError struct {
	Operator string
}

func (e *OperatorError) Error() string {
	return fmt.Sprintf("cypher: invalid operator %q", e.Operator)
}
