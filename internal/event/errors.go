package event

import (
	"errors"
	"fmt"
)

// Sentinel errors for event delivery.
var (
	// ErrNoTarget is returned when an event has no target, no page and no
	// page is bound to the calling context.
	ErrNoTarget = errors.New("event has no deliverable target")

	// ErrNoPage is returned when Post cannot determine the owning page.
	ErrNoPage = errors.New("event has no page")

	// ErrPageMismatch is returned when an event is posted to a queue owned
	// by a page other than the event's own.
	ErrPageMismatch = errors.New("event belongs to a different page")

	// ErrPageClosed is returned when an event is posted to a dead page.
	ErrPageClosed = errors.New("page is closed")

	// ErrUnknownEvent is returned for event types with no registered variant.
	ErrUnknownEvent = errors.New("unknown event type")

	// ErrUnknownTarget is returned when a request names a component the
	// page does not know.
	ErrUnknownTarget = errors.New("unknown target")

	// ErrInvalidPayload is returned when request data is not a JSON object.
	ErrInvalidPayload = errors.New("invalid event payload")

	// ErrMissingField is returned when a required field is absent.
	ErrMissingField = errors.New("missing required field")

	// ErrFieldType is returned when a field has the wrong JSON type.
	ErrFieldType = errors.New("wrong field type")

	// ErrInvalidVariant is returned when registering a malformed variant.
	ErrInvalidVariant = errors.New("invalid event variant")

	// ErrDuplicateVariant is returned when a name is registered twice.
	ErrDuplicateVariant = errors.New("event variant already registered")
)

// BindError reports a field of a request payload that could not be bound
// to its event.
type BindError struct {
	// Event is the event type being bound.
	Event string

	// Field is the payload field that failed.
	Field string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s.%s: %v", e.Event, e.Field, e.Err)
}

// Unwrap returns the underlying error.
func (e *BindError) Unwrap() error {
	return e.Err
}

// MismatchError describes a post to the wrong page's queue.
type MismatchError struct {
	// Queue is the ID of the page owning the queue.
	Queue string

	// Event is the ID of the page the event belongs to.
	Event string
}

// Error implements the error interface.
func (e *MismatchError) Error() string {
	return fmt.Sprintf("event for page %s posted to queue of page %s", e.Event, e.Queue)
}

// Is reports whether target is ErrPageMismatch.
func (e *MismatchError) Is(target error) bool {
	return target == ErrPageMismatch
}
