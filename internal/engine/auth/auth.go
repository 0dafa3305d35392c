package auth

import (
	"errors"
	"fmt"

	"taskflow/internal/domain"
)

// ErrUnauthenticated covers every reason a caller could not be identified:
// missing or malformed bearer, bad signature, expired token, or a subject
// that no longer exists. Callers never learn which one.
var ErrUnauthenticated = errors.New("unauthenticated")

// ForbiddenError indicates an authenticated identity lacks the right to act.
type ForbiddenError struct {
	Reason string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Reason)
}

// MayAccess reports whether identityID participates in the task, either as
// assigner or assignee. Roles play no part.
func MayAccess(identityID string, t domain.Task) bool {
	if identityID == "" {
		return false
	}
	return identityID == t.AssignedBy || identityID == t.AssignedTo
}
