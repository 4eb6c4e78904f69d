// Package server is the request-handling boundary between client
// connections and pages.
//
// Every client request runs as one processing cycle on its page:
//
//  1. A fresh execution is bound to the request, page and session.
//  2. The page's synchronizer starts batching.
//  3. The request is handled: "event" requests are routed to components,
//     "ping" requests do nothing else, other types go to registered
//     handlers.
//  4. The page's deferred event queue is drained.
//  5. Batching stops and the coalesced invocations are sent as one batch.
//  6. The execution is destroyed.
//
// Cycles of one page never overlap. Work not driven by a request, such as
// timers, enters through RunAs and gets the same cycle.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"

	"github.com/dshills/uisync/internal/event"
	"github.com/dshills/uisync/internal/execctx"
	"github.com/dshills/uisync/internal/logging"
	"github.com/dshills/uisync/internal/page"
	"github.com/dshills/uisync/internal/synchronizer"
	"github.com/dshills/uisync/internal/transport"
)

// Built-in request types.
const (
	RequestEvent = "event"
	RequestPing  = "ping"
)

// Builder populates a new page's component tree and listeners before it is
// rendered.
type Builder interface {
	Build(ctx context.Context, p *page.Page) error
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(ctx context.Context, p *page.Page) error

// Build calls f.
func (f BuilderFunc) Build(ctx context.Context, p *page.Page) error {
	return f(ctx, p)
}

// Handler handles a custom request type inside a processing cycle.
type Handler func(ctx context.Context, p *page.Page, params json.RawMessage) (any, error)

// Server accepts client connections and runs their pages.
type Server struct {
	builder  Builder
	log      *slog.Logger
	pages    *page.Registry
	router   *event.Router
	maxBatch int
	pretty   bool

	mu       sync.RWMutex
	handlers map[string]Handler

	// cycles holds one mutex per live page.
	cycles sync.Map
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithRouter sets the event router.
func WithRouter(r *event.Router) Option {
	return func(s *Server) { s.router = r }
}

// WithMaxBatch limits the invocations per transmission.
func WithMaxBatch(n int) Option {
	return func(s *Server) { s.maxBatch = n }
}

// WithPretty formats debug dumps of outbound batches.
func WithPretty(on bool) Option {
	return func(s *Server) { s.pretty = on }
}

// New creates a server building pages with b.
func New(b Builder, opts ...Option) (*Server, error) {
	if b == nil {
		return nil, ErrNoBuilder
	}
	s := &Server{
		builder:  b,
		pages:    page.NewRegistry(),
		handlers: make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.OrDiscard(s.log)
	if s.router == nil {
		s.router = event.NewRouter(nil, event.WithRouterLogger(s.log))
	}
	return s, nil
}

// Pages returns the registry of live pages.
func (s *Server) Pages() *page.Registry { return s.pages }

// Router returns the event router.
func (s *Server) Router() *event.Router { return s.router }

// Handle registers h for requests of type requestType.
func (s *Server) Handle(requestType string, h Handler) error {
	if requestType == RequestEvent || requestType == RequestPing {
		return fmt.Errorf("%w: %s", ErrReservedRequest, requestType)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[requestType] = h
	return nil
}

func (s *Server) handler(requestType string) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[requestType]
	return h, ok
}

// Serve accepts connections from l until ctx is cancelled, serving each on
// its own goroutine. It waits for open connections to end before
// returning.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			l.Close()
		case <-stop:
		}
	}()

	s.log.Info("serving", "address", l.Addr().String())
	for {
		nc, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.ServeConn(ctx, nc); err != nil {
				s.log.Warn("connection failed", "remote", nc.RemoteAddr().String(), "error", err)
			}
		}()
	}
}

// ServeConn runs one page over rwc until the client disconnects or ctx is
// cancelled.
func (s *Server) ServeConn(ctx context.Context, rwc io.ReadWriteCloser) error {
	conn := transport.NewConn(transport.WithLogger(s.log), transport.WithPretty(s.pretty))
	session := page.NewSession(conn)
	p := page.New(session, page.WithLogger(s.log), page.WithMaxBatch(s.maxBatch))
	s.pages.Add(p)
	defer s.disconnect(p)

	if err := conn.Start(ctx, rwc, s.inbound(p)); err != nil {
		rwc.Close()
		return err
	}
	err := s.RunAs(ctx, p.ID(), func(ctx context.Context) error {
		if err := s.builder.Build(ctx, p); err != nil {
			return err
		}
		return p.Render(ctx)
	})
	if err != nil {
		conn.Close()
		return fmt.Errorf("build page: %w", err)
	}
	p.Logger().Info("page connected", "session", session.ID())

	select {
	case <-conn.Done():
	case <-ctx.Done():
		conn.Close()
	}
	return nil
}

func (s *Server) disconnect(p *page.Page) {
	s.pages.Remove(p.ID())
	p.Close()
	s.cycles.Delete(p.ID())
	p.Logger().Info("page disconnected")
}

// Close closes every live page.
func (s *Server) Close() {
	s.pages.CloseAll()
}

// inbound returns the transport handler for p's connection.
func (s *Server) inbound(p *page.Page) transport.Inbound {
	return transport.InboundFunc(func(ctx context.Context, method string, params json.RawMessage) (any, error) {
		result, err := s.HandleRequest(ctx, p, execctx.NewRequest(method, params))
		return result, rpcError(err)
	})
}

// HandleRequest runs req as one processing cycle of p.
func (s *Server) HandleRequest(ctx context.Context, p *page.Page, req *execctx.Request) (any, error) {
	ctx, x := execctx.New(ctx)
	defer x.Destroy()
	if err := x.Bind(req, p, p.Session()); err != nil {
		return nil, &RequestError{Type: req.Type, Err: err}
	}

	var result any
	err := s.cycle(ctx, p, func(ctx context.Context) error {
		var err error
		result, err = s.dispatch(ctx, p, req)
		return err
	})
	if err != nil {
		p.Logger().Warn("request failed", "type", req.Type, "request", req.ID, "error", err)
		return nil, &RequestError{Type: req.Type, Err: err}
	}
	return result, nil
}

func (s *Server) dispatch(ctx context.Context, p *page.Page, req *execctx.Request) (any, error) {
	switch req.Type {
	case RequestEvent:
		return nil, s.router.Route(ctx, p, req.Data)
	case RequestPing:
		return nil, nil
	}
	h, ok := s.handler(req.Type)
	if !ok {
		return nil, ErrUnknownRequest
	}
	return h(ctx, p, req.Data)
}

// RunAs runs fn as a processing cycle of the page with the given ID. When
// ctx is already bound to that page, fn runs directly inside the current
// cycle.
func (s *Server) RunAs(ctx context.Context, pageID string, fn func(ctx context.Context) error) error {
	if execctx.CurrentPageID(ctx) == pageID {
		return fn(ctx)
	}
	return execctx.RunAs(ctx, s.pages, pageID, func(ctx context.Context) error {
		p, ok := s.pages.Get(pageID)
		if !ok {
			return fmt.Errorf("%w: %s", execctx.ErrPageNotFound, pageID)
		}
		return s.cycle(ctx, p, fn)
	})
}

// cycle runs fn between StartQueueing and StopQueueing, drains the event
// queue and recovers panics. Cycles of one page are serialized.
func (s *Server) cycle(ctx context.Context, p *page.Page, fn func(ctx context.Context) error) (err error) {
	mu, _ := s.cycles.LoadOrStore(p.ID(), &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	defer mu.(*sync.Mutex).Unlock()

	syn := p.Synchronizer()
	syn.StartQueueing()
	defer func() {
		if r := recover(); r != nil {
			pe := &PanicError{Value: r, Stack: string(debug.Stack())}
			p.Logger().Error("panic in processing cycle", "panic", r, "stack", pe.Stack)
			err = errors.Join(err, pe)
		}
		if ferr := syn.StopQueueing(ctx); ferr != nil && !errors.Is(ferr, synchronizer.ErrClosed) {
			err = errors.Join(err, fmt.Errorf("flush: %w", ferr))
		}
	}()

	handleErr := fn(ctx)
	return errors.Join(handleErr, p.EventQueue().ProcessAll(ctx))
}
