package event

import (
	"errors"
	"testing"
)

func TestBindError(t *testing.T) {
	underlyingErr := errors.New("not a number")
	err := &BindError{Event: "onClick", Field: "x", Err: underlyingErr}

	if got := err.Error(); got != "bind onClick.x: not a number" {
		t.Errorf("unexpected error string: %s", got)
	}
	if !errors.Is(err, underlyingErr) {
		t.Error("errors.Is should match the underlying error")
	}
}

func TestMismatchError(t *testing.T) {
	err := &MismatchError{Queue: "p1", Event: "p2"}

	if got := err.Error(); got != "event for page p2 posted to queue of page p1" {
		t.Errorf("unexpected error string: %s", got)
	}
	if !errors.Is(err, ErrPageMismatch) {
		t.Error("errors.Is should match ErrPageMismatch")
	}
	if errors.Is(err, ErrPageClosed) {
		t.Error("errors.Is should not match unrelated errors")
	}
}
