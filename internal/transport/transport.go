// Package transport carries requests and invocations between a page and
// its rendering client over JSON-RPC 2.0.
//
// Client requests arrive as JSON-RPC calls or notifications whose method is
// the request type ("event", "ping", ...). Outbound traffic consists of two
// notifications: "invoke", whose params are an ordered batch of
// invocations, and "ping", which asks the client to send a ping request.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/tidwall/pretty"

	"github.com/dshills/uisync/internal/invoke"
	"github.com/dshills/uisync/internal/logging"
)

// Outbound notification methods.
const (
	MethodInvoke = "invoke"
	MethodPing   = "ping"
)

// Errors returned by Conn.
var (
	ErrNotStarted = errors.New("connection not started")
	ErrStarted    = errors.New("connection already started")
)

// Inbound handles requests from the client. The returned value becomes the
// JSON-RPC result for calls and is discarded for notifications.
type Inbound interface {
	HandleRequest(ctx context.Context, method string, params json.RawMessage) (any, error)
}

// InboundFunc adapts a function to Inbound.
type InboundFunc func(ctx context.Context, method string, params json.RawMessage) (any, error)

// HandleRequest calls f.
func (f InboundFunc) HandleRequest(ctx context.Context, method string, params json.RawMessage) (any, error) {
	return f(ctx, method, params)
}

// Conn is one client connection. It is created before the page it serves
// and started once the page exists.
type Conn struct {
	log    *slog.Logger
	pretty bool

	mu  sync.RWMutex
	rpc *jsonrpc2.Conn
}

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the connection's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Conn) { c.log = l }
}

// WithPretty formats debug dumps of outbound batches.
func WithPretty(on bool) Option {
	return func(c *Conn) { c.pretty = on }
}

// NewConn creates an unstarted connection.
func NewConn(opts ...Option) *Conn {
	c := &Conn{}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logging.OrDiscard(c.log)
	return c
}

// Start begins serving rwc, passing client requests to in. Requests are
// handled one at a time in arrival order.
func (c *Conn) Start(ctx context.Context, rwc io.ReadWriteCloser, in Inbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpc != nil {
		return ErrStarted
	}
	handler := jsonrpc2.HandlerWithError(func(ctx context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
		var params json.RawMessage
		if req.Params != nil {
			params = *req.Params
		}
		return in.HandleRequest(ctx, req.Method, params)
	})
	c.rpc = jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{}),
		handler)
	return nil
}

func (c *Conn) conn() (*jsonrpc2.Conn, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.rpc == nil {
		return nil, ErrNotStarted
	}
	return c.rpc, nil
}

// Transmit sends batch as one "invoke" notification. Targets are resolved
// to element IDs here, at send time.
func (c *Conn) Transmit(ctx context.Context, batch []invoke.Invocation) error {
	rpc, err := c.conn()
	if err != nil {
		return err
	}
	payload, err := EncodeBatch(batch)
	if err != nil {
		return err
	}
	if c.log.Enabled(ctx, slog.LevelDebug) {
		dump := payload
		if c.pretty {
			dump = pretty.Pretty(payload)
		}
		c.log.Debug("transmit", "invocations", len(batch), "batch", string(dump))
	}
	if err := rpc.Notify(ctx, MethodInvoke, json.RawMessage(payload)); err != nil {
		return fmt.Errorf("transmit: %w", err)
	}
	return nil
}

// Ping sends a "ping" notification asking the client for a processing
// cycle.
func (c *Conn) Ping(ctx context.Context, reason string) error {
	rpc, err := c.conn()
	if err != nil {
		return err
	}
	if err := rpc.Notify(ctx, MethodPing, map[string]string{"reason": reason}); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Done is closed when the client disconnects.
func (c *Conn) Done() <-chan struct{} {
	rpc, err := c.conn()
	if err != nil {
		ch := make(chan struct{})
		return ch
	}
	return rpc.DisconnectNotify()
}

// Close closes the connection.
func (c *Conn) Close() error {
	rpc, err := c.conn()
	if err != nil {
		return nil
	}
	if err := rpc.Close(); err != nil && !errors.Is(err, jsonrpc2.ErrClosed) {
		return err
	}
	return nil
}
