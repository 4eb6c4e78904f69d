// Package execctx provides the execution context for request handling.
//
// An Execution records which request, session and page the current unit of
// work is serving. It travels inside a context.Context, so code deep in a
// handler can discover "where am I" without threading page handles through
// every call. Entry points that are not driven by an inbound request (timers,
// background goroutines) use RunAs to obtain a scoped binding that is always
// released when the callback returns.
package execctx

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Page is the view of a page the execution context needs.
type Page interface {
	ID() string
}

// Session is the view of a client session the execution context needs.
type Session interface {
	ID() string
}

// SessionProvider is implemented by pages that know their session.
type SessionProvider interface {
	Session() Session
}

// Request is the inbound request marker bound to an Execution.
type Request struct {
	// ID uniquely identifies the request.
	ID string

	// Type is the request type ("event", "ping", ...).
	Type string

	// Data is the raw request payload.
	Data json.RawMessage
}

// NewRequest creates a request marker with a fresh ID.
func NewRequest(requestType string, data json.RawMessage) *Request {
	return &Request{
		ID:   uuid.NewString(),
		Type: requestType,
		Data: data,
	}
}

// Neutral request type synthesized by RunAs when no request is bound.
const neutralRequestType = "run-as"

// Execution is the per-request binding of request, session and page.
// It is owned by one unit of work and must not be shared between
// concurrently running requests.
type Execution struct {
	mu sync.RWMutex

	request *Request
	page    Page
	session Session

	// attrs is created on first use.
	attrs map[string]any

	destroyed bool
}

type contextKey struct{}

// New returns a context carrying a fresh, empty Execution.
func New(ctx context.Context) (context.Context, *Execution) {
	x := &Execution{}
	return context.WithValue(ctx, contextKey{}, x), x
}

// From returns the Execution carried by ctx, or nil.
func From(ctx context.Context) *Execution {
	if ctx == nil {
		return nil
	}
	x, _ := ctx.Value(contextKey{}).(*Execution)
	return x
}

// Ensure returns ctx's Execution, creating an empty one if ctx has none.
func Ensure(ctx context.Context) (context.Context, *Execution) {
	if x := From(ctx); x != nil {
		return ctx, x
	}
	return New(ctx)
}

// Bind attaches an inbound request, and the page and session it arrived
// for, to the execution. At most one request may be bound at a time.
func (x *Execution) Bind(req *Request, page Page, session Session) error {
	if req == nil {
		return ErrNilRequest
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.destroyed {
		return ErrDestroyed
	}
	if x.request != nil {
		return ErrAlreadyBound
	}

	x.request = req
	x.page = page
	x.session = session
	return nil
}

// Request returns the bound request marker, or nil.
func (x *Execution) Request() *Request {
	if x == nil {
		return nil
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.request
}

// Page returns the bound page, or nil.
func (x *Execution) Page() Page {
	if x == nil {
		return nil
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.page
}

// Session returns the bound session, or nil.
func (x *Execution) Session() Session {
	if x == nil {
		return nil
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.session
}

// SetAttr stores a value for the lifetime of the execution.
func (x *Execution) SetAttr(key string, value any) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.attrs == nil {
		x.attrs = make(map[string]any)
	}
	x.attrs[key] = value
}

// Attr retrieves a value stored with SetAttr.
func (x *Execution) Attr(key string) (any, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	v, ok := x.attrs[key]
	return v, ok
}

// Clear drops the request, page and session bindings. Attributes survive.
func (x *Execution) Clear() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.request = nil
	x.page = nil
	x.session = nil
}

// Destroy clears the execution and releases its attributes. A destroyed
// execution rejects further binds.
func (x *Execution) Destroy() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.request = nil
	x.page = nil
	x.session = nil
	x.attrs = nil
	x.destroyed = true
}

// IsDestroyed reports whether Destroy has been called.
func (x *Execution) IsDestroyed() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.destroyed
}

// CurrentPage returns the page bound to ctx's execution, or nil.
func CurrentPage(ctx context.Context) Page {
	return From(ctx).Page()
}

// CurrentSession returns the session bound to ctx's execution, or nil.
func CurrentSession(ctx context.Context) Session {
	return From(ctx).Session()
}

// CurrentRequest returns the request bound to ctx's execution, or nil.
func CurrentRequest(ctx context.Context) *Request {
	return From(ctx).Request()
}

// CurrentPageID returns the ID of the bound page, or "".
func CurrentPageID(ctx context.Context) string {
	if p := CurrentPage(ctx); p != nil {
		return p.ID()
	}
	return ""
}
