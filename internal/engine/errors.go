package engine

import "fmt"

// BadInputError rejects a request whose content is unacceptable, such as a
// duplicate email or a role outside the hierarchy.
type BadInputError struct {
	Field  string
	Reason string
}

func (e BadInputError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func badInput(field, reason string) error {
	return BadInputError{Field: field, Reason: reason}
}
