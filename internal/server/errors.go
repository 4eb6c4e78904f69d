package server

import (
	"errors"
	"fmt"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/dshills/uisync/internal/event"
)

// Sentinel errors for request handling.
var (
	// ErrUnknownRequest is returned for request types with no handler.
	ErrUnknownRequest = errors.New("unknown request type")

	// ErrReservedRequest is returned when registering a built-in type.
	ErrReservedRequest = errors.New("request type is reserved")

	// ErrRequestPanic is matched by every PanicError.
	ErrRequestPanic = errors.New("request handler panicked")

	// ErrNoBuilder is returned by New when no page builder is given.
	ErrNoBuilder = errors.New("no page builder")
)

// RequestError wraps a failed request with its type.
type RequestError struct {
	// Type is the request type.
	Type string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return fmt.Sprintf("request %q: %v", e.Type, e.Err)
}

// Unwrap returns the underlying error.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// PanicError is a panic recovered at the request boundary.
type PanicError struct {
	// Value is the value passed to panic().
	Value any

	// Stack is the stack trace at the time of the panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Is allows errors.Is to match PanicError with ErrRequestPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrRequestPanic
}

// rpcError converts a request failure to a JSON-RPC error reply.
func rpcError(err error) error {
	if err == nil {
		return nil
	}
	var rpcErr *jsonrpc2.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	code := int64(jsonrpc2.CodeInternalError)
	switch {
	case errors.Is(err, ErrUnknownRequest):
		code = jsonrpc2.CodeMethodNotFound
	case errors.Is(err, event.ErrUnknownEvent),
		errors.Is(err, event.ErrUnknownTarget),
		errors.Is(err, event.ErrInvalidPayload),
		errors.Is(err, event.ErrMissingField),
		errors.Is(err, event.ErrFieldType):
		code = jsonrpc2.CodeInvalidParams
	}
	return &jsonrpc2.Error{Code: code, Message: err.Error()}
}
