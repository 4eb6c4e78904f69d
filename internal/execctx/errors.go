package execctx

import (
	"errors"
	"fmt"
)

// Execution context errors.
var (
	// ErrNilRequest is returned when binding a nil request.
	ErrNilRequest = errors.New("nil request")

	// ErrAlreadyBound is returned when a request is already bound.
	ErrAlreadyBound = errors.New("request already bound to execution")

	// ErrDestroyed is returned when binding to a destroyed execution.
	ErrDestroyed = errors.New("execution destroyed")

	// ErrPageConflict is matched by ConflictError.
	ErrPageConflict = errors.New("execution bound to a different page")

	// ErrPageNotFound is returned by resolvers for unknown page IDs.
	ErrPageNotFound = errors.New("page not found")

	// ErrNoResolver is returned by RunAs when no resolver is given.
	ErrNoResolver = errors.New("no page resolver")
)

// ConflictError reports an attempt to bind a second page.
type ConflictError struct {
	Bound     string
	Requested string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("execution bound to page %s, cannot bind page %s", e.Bound, e.Requested)
}

// Is matches ErrPageConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrPageConflict
}
