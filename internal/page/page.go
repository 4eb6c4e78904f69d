// Package page implements pages and sessions.
//
// A Page is the server-side root of one client's component tree. It owns
// the tree's ID index, the deferred event queue and the synchronizer that
// carries invocations to the client. A Page is itself an event target for
// page-scoped events.
package page

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/uisync/internal/component"
	"github.com/dshills/uisync/internal/event"
	"github.com/dshills/uisync/internal/execctx"
	"github.com/dshills/uisync/internal/logging"
	"github.com/dshills/uisync/internal/synchronizer"
)

// RootWidget is the widget type of every page's root component.
const RootWidget = "page"

// ErrRendered is returned when Render is called twice.
var ErrRendered = errors.New("page already rendered")

// Client is the connection behind a session.
type Client interface {
	synchronizer.Channel

	// Ping asks the client to send a ping request.
	Ping(ctx context.Context, reason string) error
}

// Session is one client connection.
type Session struct {
	id      string
	client  Client
	created time.Time
}

// NewSession creates a session over client.
func NewSession(client Client) *Session {
	return &Session{
		id:      uuid.NewString(),
		client:  client,
		created: time.Now(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Created returns when the session was established.
func (s *Session) Created() time.Time { return s.created }

// Ping forwards a wake-up to the client.
func (s *Session) Ping(ctx context.Context, reason string) error {
	return s.client.Ping(ctx, reason)
}

// Page is one live page.
type Page struct {
	id      string
	session *Session
	sync    *synchronizer.Synchronizer
	queue   *event.Queue
	root    *component.Component
	log     *slog.Logger

	mu    sync.RWMutex
	index map[string]*component.Component

	alive    atomic.Bool
	rendered atomic.Bool

	listeners event.Listeners

	closeMu sync.Mutex
	onClose []func()
}

type options struct {
	log      *slog.Logger
	maxBatch int
}

// Option configures a Page.
type Option func(*options)

// WithLogger sets the page's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMaxBatch limits the invocations per transmission.
func WithMaxBatch(n int) Option {
	return func(o *options) { o.maxBatch = n }
}

// New creates a live page for session with an empty root component.
func New(session *Session, opts ...Option) *Page {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	id := uuid.NewString()
	log := logging.OrDiscard(o.log).With("page", id)

	p := &Page{
		id:      id,
		session: session,
		log:     log,
		index:   make(map[string]*component.Component),
	}
	p.sync = synchronizer.New(session.client,
		synchronizer.WithLogger(log),
		synchronizer.WithMaxBatch(o.maxBatch),
	)
	p.queue = event.NewQueue(p, event.WithQueueLogger(log))
	p.root = component.New(RootWidget, id, nil)
	p.alive.Store(true)
	return p
}

// ID returns the page identifier.
func (p *Page) ID() string { return p.id }

// Session returns the page's session.
func (p *Page) Session() execctx.Session { return p.session }

// Synchronizer returns the page's outbound gateway.
func (p *Page) Synchronizer() *synchronizer.Synchronizer { return p.sync }

// EventQueue returns the page's deferred event queue.
func (p *Page) EventQueue() *event.Queue { return p.queue }

// Root returns the root component.
func (p *Page) Root() *component.Component { return p.root }

// Logger returns the page's logger.
func (p *Page) Logger() *slog.Logger { return p.log }

// Alive reports whether the page still has a client.
func (p *Page) Alive() bool { return p.alive.Load() }

// Render attaches the component tree and sends it to the client.
func (p *Page) Render(ctx context.Context) error {
	if !p.Alive() {
		return event.ErrPageClosed
	}
	if !p.rendered.CompareAndSwap(false, true) {
		return ErrRendered
	}
	return component.Mount(ctx, p, p.root)
}

// Close ends the page. Queued events and invocations are discarded and
// further pings and transmissions are refused. Close reports whether this
// call closed the page.
func (p *Page) Close() bool {
	if !p.alive.CompareAndSwap(true, false) {
		return false
	}
	p.sync.Close()
	p.queue.Clear()
	component.Unmount(p.root)
	p.listeners.Reset()

	p.closeMu.Lock()
	hooks := p.onClose
	p.onClose = nil
	p.closeMu.Unlock()
	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
	p.log.Debug("page closed")
	return true
}

// OnClose registers fn to run when the page closes. Hooks run in reverse
// registration order. On a closed page fn runs immediately.
func (p *Page) OnClose(fn func()) {
	p.closeMu.Lock()
	if p.Alive() {
		p.onClose = append(p.onClose, fn)
		p.closeMu.Unlock()
		return
	}
	p.closeMu.Unlock()
	fn()
}

// Ping asks the page's client to start a processing cycle.
func (p *Page) Ping(ctx context.Context, reason string) error {
	if !p.Alive() {
		return event.ErrPageClosed
	}
	return p.session.Ping(ctx, reason)
}

// Index records an attached component.
func (p *Page) Index(c *component.Component) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.index[c.ID()] = c
}

// Unindex forgets a detached component.
func (p *Page) Unindex(c *component.Component) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index[c.ID()] == c {
		delete(p.index, c.ID())
	}
}

// Component returns the attached component with the given ID.
func (p *Page) Component(id string) (*component.Component, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.index[id]
	return c, ok
}

// Lookup resolves a component ID for event routing.
func (p *Page) Lookup(id string) (event.Target, bool) {
	c, ok := p.Component(id)
	if !ok {
		return nil, false
	}
	return c, true
}

// FindByName returns the first component, in tree order, whose "name"
// attribute equals name.
func (p *Page) FindByName(name string) (*component.Component, bool) {
	var found *component.Component
	p.root.Walk(func(c *component.Component) bool {
		if v, ok := c.Attr("name"); ok && v == name {
			found = c
			return false
		}
		return true
	})
	return found, found != nil
}

// Len returns the number of attached components.
func (p *Page) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.index)
}

// On registers a page-level listener.
func (p *Page) On(name string, l event.Listener) bool {
	return p.listeners.Add(name, l)
}

// Off unregisters a page-level listener.
func (p *Page) Off(name string, l event.Listener) bool {
	return p.listeners.Remove(name, l)
}

// FireEvent delivers a page-scoped event to the page's listeners.
func (p *Page) FireEvent(ctx context.Context, e event.Event) error {
	return p.listeners.Dispatch(ctx, e)
}
