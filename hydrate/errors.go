package hydrate

import (
	"errors"
	"fmt"
)

// CorruptResultError reports a result set that does not line up with the query
// that produced it, such as an edge whose endpoints are not projected.
type CorruptResultError struct {
	Row    int
	Reason string
}

func (e *CorruptResultError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("hydrate: corrupt result at row %d: %s", e.Row, e.Reason)
	}
	return "hydrate: corrupt result: " + e.Reason
}

func IsCorruptResult(err error) bool {
	var e *CorruptResultError
	return errors.As(err, &e)
}

// UnresolvableMorphError reports a polymorphic placeholder whose discriminator
// is missing or does not name a registered schema.
type UnresolvableMorphError struct {
	Placeholder string
	Property    string
	Value       any
}

func (e *UnresolvableMorphError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("hydrate: cannot resolve morph target of %q: no %q discriminator", e.Placeholder, e.Property)
	}
	return fmt.Sprintf("hydrate: cannot resolve morph target of %q: %s=%v is not a registered schema", e.Placeholder, e.Property, e.Value)
}

func IsUnresolvableMorph(err error) bool {
	var e *UnresolvableMorphError
	return errors.As(err, &e)
}
