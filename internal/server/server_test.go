package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/dshills/uisync/internal/component"
	"github.com/dshills/uisync/internal/event"
	"github.com/dshills/uisync/internal/execctx"
	"github.com/dshills/uisync/internal/invoke"
	"github.com/dshills/uisync/internal/page"
	"github.com/dshills/uisync/internal/transport"
)

// greeter builds a page with a textbox and a label. Every change of the
// textbox rewrites the label several times; only the last write should
// reach the client.
var greeter = BuilderFunc(func(ctx context.Context, p *page.Page) error {
	name := component.New("textbox", "name", nil)
	greeting := component.New("label", "greeting", map[string]any{"text": ""})
	root := p.Root()
	if err := root.Append(ctx, name); err != nil {
		return err
	}
	if err := root.Append(ctx, greeting); err != nil {
		return err
	}
	name.On("onChange", event.Func(func(ctx context.Context, e event.Event) error {
		value := e.(*event.InputEvent).Value
		for _, text := range []string{"...", "Hello", "Hello, " + value} {
			if err := greeting.SetAttr(ctx, "text", text); err != nil {
				return err
			}
		}
		return nil
	}))
	name.On("onTimer", event.Func(func(ctx context.Context, _ event.Event) error {
		return greeting.SetAttr(ctx, "text", "tick")
	}))
	name.On("onPanic", event.Func(func(context.Context, event.Event) error {
		panic("listener exploded")
	}))
	return nil
})

type fakeClient struct {
	mu      sync.Mutex
	batches [][]string
	pings   int
}

func (c *fakeClient) Transmit(_ context.Context, batch []invoke.Invocation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var lines []string
	for _, inv := range batch {
		id, err := inv.TargetID()
		if err != nil {
			return err
		}
		lines = append(lines, fmt.Sprintf("%s@%s%v", inv.Function(), id, inv.Args()))
	}
	c.batches = append(c.batches, lines)
	return nil
}

func (c *fakeClient) Ping(context.Context, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return nil
}

func (c *fakeClient) last() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.batches) == 0 {
		return nil
	}
	return c.batches[len(c.batches)-1]
}

// newPage builds and renders a greeter page registered with s.
func newPage(t *testing.T, s *Server) (*page.Page, *fakeClient) {
	t.Helper()
	client := &fakeClient{}
	p := page.New(page.NewSession(client))
	s.Pages().Add(p)
	err := s.RunAs(context.Background(), p.ID(), func(ctx context.Context) error {
		if err := greeter.Build(ctx, p); err != nil {
			return err
		}
		return p.Render(ctx)
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	return p, client
}

func newServer(t *testing.T) *Server {
	t.Helper()
	reg := event.DefaultRegistry()
	reg.MustRegister(event.GenericVariant("onPanic"))
	s, err := New(greeter, WithRouter(event.NewRouter(reg)))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return s
}

func eventRequest(payload string) *execctx.Request {
	return execctx.NewRequest(RequestEvent, json.RawMessage(payload))
}

func TestNewRequiresBuilder(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrNoBuilder) {
		t.Errorf("expected ErrNoBuilder, got %v", err)
	}
}

func TestEventRequestCoalescesOutput(t *testing.T) {
	s := newServer(t)
	p, client := newPage(t, s)

	_, err := s.HandleRequest(context.Background(), p, eventRequest(`{"type":"onChange","target":"name","value":"Ada"}`))
	if err != nil {
		t.Fatalf("HandleRequest() failed: %v", err)
	}
	want := []string{"setAttr@greeting[text Hello, Ada]"}
	if diff := cmp.Diff(want, client.last()); diff != "" {
		t.Errorf("batch mismatch (-want +got):\n%s", diff)
	}
	if p.Synchronizer().IsQueueing() {
		t.Error("expected synchronizer back in normal mode")
	}
}

func TestRequestFailures(t *testing.T) {
	s := newServer(t)
	p, _ := newPage(t, s)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *execctx.Request
		want error
		code int64
	}{
		{
			name: "unknown event type",
			req:  eventRequest(`{"type":"onExplode","target":"name"}`),
			want: event.ErrUnknownEvent,
			code: jsonrpc2.CodeInvalidParams,
		},
		{
			name: "missing required field",
			req:  eventRequest(`{"type":"onChange","target":"name"}`),
			want: event.ErrMissingField,
			code: jsonrpc2.CodeInvalidParams,
		},
		{
			name: "unknown request type",
			req:  execctx.NewRequest("bogus", nil),
			want: ErrUnknownRequest,
			code: jsonrpc2.CodeMethodNotFound,
		},
		{
			name: "listener panic",
			req:  eventRequest(`{"type":"onPanic","target":"name"}`),
			want: ErrRequestPanic,
			code: jsonrpc2.CodeInternalError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.HandleRequest(ctx, p, tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var reqErr *RequestError
			if !errors.As(err, &reqErr) || reqErr.Type != tt.req.Type {
				t.Errorf("expected RequestError for %s, got %v", tt.req.Type, err)
			}
			var rpcErr *jsonrpc2.Error
			if !errors.As(rpcError(err), &rpcErr) || rpcErr.Code != tt.code {
				t.Errorf("expected code %d, got %v", tt.code, rpcError(err))
			}
			if p.Synchronizer().IsQueueing() {
				t.Error("a failed cycle must leave the synchronizer in normal mode")
			}
		})
	}
}

func TestPanicErrorCarriesStack(t *testing.T) {
	s := newServer(t)
	p, _ := newPage(t, s)
	_, err := s.HandleRequest(context.Background(), p, eventRequest(`{"type":"onPanic","target":"name"}`))
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PanicError, got %v", err)
	}
	if pe.Value != "listener exploded" || pe.Stack == "" {
		t.Errorf("unexpected panic error: %+v", pe)
	}
}

func TestCustomHandler(t *testing.T) {
	s := newServer(t)
	p, client := newPage(t, s)

	if err := s.Handle(RequestEvent, nil); !errors.Is(err, ErrReservedRequest) {
		t.Errorf("expected ErrReservedRequest, got %v", err)
	}
	err := s.Handle("reset", func(ctx context.Context, p *page.Page, _ json.RawMessage) (any, error) {
		greeting, _ := p.Component("greeting")
		return "done", greeting.SetAttr(ctx, "text", "")
	})
	if err != nil {
		t.Fatalf("Handle() failed: %v", err)
	}

	result, err := s.HandleRequest(context.Background(), p, execctx.NewRequest("reset", nil))
	if err != nil || result != "done" {
		t.Fatalf("HandleRequest() = %v, %v", result, err)
	}
	if diff := cmp.Diff([]string{"setAttr@greeting[text ]"}, client.last()); diff != "" {
		t.Errorf("batch mismatch (-want +got):\n%s", diff)
	}
}

func TestPingDrainsDeferredEvents(t *testing.T) {
	s := newServer(t)
	p, client := newPage(t, s)
	name, _ := p.Component("name")

	// A background goroutine with no page binding posts an event.
	if err := name.Post(context.Background(), "onTimer", nil); err != nil {
		t.Fatalf("Post() failed: %v", err)
	}
	if client.pings != 1 {
		t.Fatalf("expected a ping, got %d", client.pings)
	}

	if _, err := s.HandleRequest(context.Background(), p, execctx.NewRequest(RequestPing, nil)); err != nil {
		t.Fatalf("ping request failed: %v", err)
	}
	if diff := cmp.Diff([]string{"setAttr@greeting[text tick]"}, client.last()); diff != "" {
		t.Errorf("batch mismatch (-want +got):\n%s", diff)
	}
}

func TestRunAs(t *testing.T) {
	s := newServer(t)
	p, client := newPage(t, s)
	other, _ := newPage(t, s)
	ctx := context.Background()

	err := s.RunAs(ctx, p.ID(), func(ctx context.Context) error {
		name, _ := p.Component("name")
		if err := name.Post(ctx, "onTimer", nil); err != nil {
			return err
		}
		// Re-entrant for the same page.
		return s.RunAs(ctx, p.ID(), func(ctx context.Context) error {
			greeting, _ := p.Component("greeting")
			return greeting.SetAttr(ctx, "visible", true)
		})
	})
	if err != nil {
		t.Fatalf("RunAs() failed: %v", err)
	}
	want := []string{"setAttr@greeting[visible true]", "setAttr@greeting[text tick]"}
	if diff := cmp.Diff(want, client.last()); diff != "" {
		t.Errorf("batch mismatch (-want +got):\n%s", diff)
	}
	if client.pings != 0 {
		t.Errorf("posting inside the page's own cycle must not ping, got %d", client.pings)
	}

	err = s.RunAs(ctx, p.ID(), func(ctx context.Context) error {
		return s.RunAs(ctx, other.ID(), func(context.Context) error { return nil })
	})
	if !errors.Is(err, execctx.ErrPageConflict) {
		t.Errorf("expected ErrPageConflict, got %v", err)
	}
	if err := s.RunAs(ctx, "missing", func(context.Context) error { return nil }); !errors.Is(err, execctx.ErrPageNotFound) {
		t.Errorf("expected ErrPageNotFound, got %v", err)
	}
}

func TestDetachInCycleKeepsBatch(t *testing.T) {
	s := newServer(t)
	p, client := newPage(t, s)

	err := s.RunAs(context.Background(), p.ID(), func(ctx context.Context) error {
		name, _ := p.Component("name")
		greeting, _ := p.Component("greeting")
		if err := name.SetAttr(ctx, "value", "Ada"); err != nil {
			return err
		}
		if err := greeting.SetAttr(ctx, "text", "bye"); err != nil {
			return err
		}
		return greeting.Detach(ctx)
	})
	if err != nil {
		t.Fatalf("RunAs() failed: %v", err)
	}
	want := []string{"setAttr@name[value Ada]", "remove@" + p.ID() + "[greeting]"}
	if diff := cmp.Diff(want, client.last()); diff != "" {
		t.Errorf("batch mismatch (-want +got):\n%s", diff)
	}
	if _, ok := p.Component("greeting"); ok {
		t.Error("expected detached component to be unindexed")
	}
}

func TestConcurrentCyclesSerialize(t *testing.T) {
	s := newServer(t)
	p, client := newPage(t, s)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := fmt.Sprintf(`{"type":"onChange","target":"name","value":"%d"}`, i)
			if _, err := s.HandleRequest(ctx, p, eventRequest(payload)); err != nil {
				t.Errorf("HandleRequest() failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	client.mu.Lock()
	defer client.mu.Unlock()
	// One create batch plus exactly one coalesced write per request.
	if len(client.batches) != 21 {
		t.Fatalf("expected 21 batches, got %d", len(client.batches))
	}
	for _, batch := range client.batches[1:] {
		if len(batch) != 1 {
			t.Errorf("expected one write per cycle, got %v", batch)
		}
	}
}

type notification struct {
	method string
	params json.RawMessage
}

func TestServeConnEndToEnd(t *testing.T) {
	s := newServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverSide, clientSide := net.Pipe()
	served := make(chan error, 1)
	go func() { served <- s.ServeConn(ctx, serverSide) }()

	notes := make(chan notification, 16)
	client := jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(clientSide, jsonrpc2.VSCodeObjectCodec{}),
		jsonrpc2.HandlerWithError(func(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
			var params json.RawMessage
			if req.Params != nil {
				params = append(params, *req.Params...)
			}
			notes <- notification{method: req.Method, params: params}
			return nil, nil
		}))

	receive := func() notification {
		t.Helper()
		select {
		case n := <-notes:
			return n
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for notification")
			return notification{}
		}
	}

	created := receive()
	calls, err := transport.DecodeBatch(created.params)
	if err != nil || created.method != transport.MethodInvoke || len(calls) != 3 {
		t.Fatalf("expected initial render of 3 creates, got %s %v (%v)", created.method, calls, err)
	}

	payload := map[string]any{"type": "onChange", "target": "name", "value": "Ada"}
	if err := client.Call(ctx, RequestEvent, payload, nil); err != nil {
		t.Fatalf("event call failed: %v", err)
	}
	update := receive()
	calls, _ = transport.DecodeBatch(update.params)
	want := []transport.Call{{Function: "setAttr", Target: "greeting", Arguments: []any{"text", "Hello, Ada"}}}
	if diff := cmp.Diff(want, calls); diff != "" {
		t.Errorf("update mismatch (-want +got):\n%s", diff)
	}

	var rpcErr *jsonrpc2.Error
	err = client.Call(ctx, RequestEvent, map[string]any{"type": "onExplode"}, nil)
	if !errors.As(err, &rpcErr) || rpcErr.Code != jsonrpc2.CodeInvalidParams {
		t.Errorf("expected invalid params, got %v", err)
	}

	// Out-of-band post: the client is pinged and answers with a ping request.
	ids := s.Pages().IDs()
	if len(ids) != 1 {
		t.Fatalf("expected one live page, got %v", ids)
	}
	p, _ := s.Pages().Get(ids[0])
	name, _ := p.Component("name")
	if err := name.Post(context.Background(), "onTimer", nil); err != nil {
		t.Fatalf("Post() failed: %v", err)
	}
	if n := receive(); n.method != transport.MethodPing {
		t.Fatalf("expected ping notification, got %s", n.method)
	}
	if err := client.Call(ctx, RequestPing, nil, nil); err != nil {
		t.Fatalf("ping call failed: %v", err)
	}
	calls, _ = transport.DecodeBatch(receive().params)
	if len(calls) != 1 || calls[0].Arguments[1] != "tick" {
		t.Errorf("expected drained timer update, got %v", calls)
	}

	client.Close()
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("ServeConn() failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ServeConn did not return after disconnect")
	}
	if s.Pages().Len() != 0 || p.Alive() {
		t.Error("expected page to be closed and removed on disconnect")
	}
}
