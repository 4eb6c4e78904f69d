package event

import (
	"context"
	"sync/atomic"

	"github.com/dshills/uisync/internal/execctx"
)

// Target is anything events can be fired at.
type Target interface {
	FireEvent(ctx context.Context, e Event) error
}

// Page is the view of a page that event delivery needs. A page is itself a
// target for page-scoped events.
type Page interface {
	Target

	// ID returns the page identifier.
	ID() string

	// EventQueue returns the page's deferred event queue.
	EventQueue() *Queue

	// Alive reports whether the page still has a client.
	Alive() bool

	// Ping asks the page's client to start a processing cycle.
	Ping(ctx context.Context, reason string) error

	// Lookup finds a component of the page by ID.
	Lookup(id string) (Target, bool)
}

// PageOwner is implemented by targets that belong to a page.
type PageOwner interface {
	Page() Page
}

// Event is a typed notification delivered to a target's listeners.
type Event interface {
	// Name returns the event type, such as "onClick".
	Name() string

	// Target returns the component the event was created against, or nil
	// for page-scoped events.
	Target() Target

	// CurrentTarget returns where the event is being delivered. It starts
	// equal to Target and changes when the event is forwarded.
	CurrentTarget() Target

	// RelatedTarget returns a secondary component, such as the dragged
	// component of a drop.
	RelatedTarget() Target

	// Data returns the opaque payload.
	Data() any

	// Page returns the page the event belongs to, or nil.
	Page() Page

	// StopPropagation prevents listeners after the current one from running.
	StopPropagation()

	// IsStopped reports whether StopPropagation has been called.
	IsStopped() bool
}

// Base is the generic event and the embedded core of every variant.
type Base struct {
	name          string
	target        Target
	currentTarget Target
	related       Target
	data          any
	page          Page

	stopped atomic.Bool
}

// Option configures a Base.
type Option func(*Base)

// WithData sets the opaque payload.
func WithData(data any) Option {
	return func(b *Base) { b.data = data }
}

// WithRelated sets the related target.
func WithRelated(t Target) Option {
	return func(b *Base) { b.related = t }
}

// WithCurrentTarget overrides the current target.
func WithCurrentTarget(t Target) Option {
	return func(b *Base) { b.currentTarget = t }
}

// WithPage sets the owning page explicitly.
func WithPage(p Page) Option {
	return func(b *Base) { b.page = p }
}

// New creates a generic event. Unless WithPage is given, the page is taken
// from the target if it belongs to one, else from the page bound to ctx.
func New(ctx context.Context, name string, target Target, opts ...Option) *Base {
	b := &Base{
		name:          name,
		target:        target,
		currentTarget: target,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.page == nil {
		b.page = resolvePage(ctx, target)
	}
	return b
}

// From creates a new event named name carrying src's targets, payload and
// page. The stopped flag is not copied.
func From(name string, src Event, opts ...Option) *Base {
	b := &Base{
		name:          name,
		target:        src.Target(),
		currentTarget: src.CurrentTarget(),
		related:       src.RelatedTarget(),
		data:          src.Data(),
		page:          src.Page(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Base) Name() string          { return b.name }
func (b *Base) Target() Target        { return b.target }
func (b *Base) CurrentTarget() Target { return b.currentTarget }
func (b *Base) RelatedTarget() Target { return b.related }
func (b *Base) Data() any             { return b.data }
func (b *Base) Page() Page            { return b.page }
func (b *Base) StopPropagation()      { b.stopped.Store(true) }
func (b *Base) IsStopped() bool       { return b.stopped.Load() }

func (b *Base) adopt(p Page) {
	if b.page == nil {
		b.page = p
	}
}

// String returns the event name.
func (b *Base) String() string { return b.name }

func resolvePage(ctx context.Context, target Target) Page {
	switch t := target.(type) {
	case Page:
		return t
	case PageOwner:
		if p := t.Page(); p != nil {
			return p
		}
	}
	return ambientPage(ctx)
}

// ambientPage returns the page bound to ctx's execution, if it is an
// event-capable page.
func ambientPage(ctx context.Context) Page {
	p, _ := execctx.CurrentPage(ctx).(Page)
	return p
}
