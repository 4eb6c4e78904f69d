// Package script runs Lua page scripts.
//
// A page script builds the page's component tree and installs listeners
// through the "ui" module:
//
//	local name = ui.append("", "textbox", "name", {placeholder = "Your name"})
//	ui.append("", "label", "greeting")
//	ui.on("name", "onChange", function(e)
//	  ui.set("greeting", "text", "Hello, " .. e.value)
//	end)
//
// Each page gets its own sandboxed Lua state, closed with the page.
package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/uisync/internal/logging"
)

// DefaultTimeout bounds one script call.
const DefaultTimeout = 5 * time.Second

// ErrStateClosed is returned by operations on a closed State.
var ErrStateClosed = errors.New("lua state closed")

// State is a sandboxed Lua state. gopher-lua states are not safe for
// concurrent use; State serializes every call with a mutex.
type State struct {
	L *lua.LState

	mu      sync.Mutex
	timeout time.Duration
	log     *slog.Logger
	closed  bool

	// ctx is the context of the call in progress, for Go functions
	// called back from Lua.
	ctx context.Context
}

// StateOption configures a State.
type StateOption func(*State)

// WithTimeout sets the per-call timeout. Zero disables it.
func WithTimeout(d time.Duration) StateOption {
	return func(s *State) { s.timeout = d }
}

// WithLogger sets the logger used by ui.log.
func WithLogger(l *slog.Logger) StateOption {
	return func(s *State) { s.log = l }
}

// NewState creates a sandboxed state with only the base, table, string
// and math libraries.
func NewState(opts ...StateOption) *State {
	s := &State{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.OrDiscard(s.log)

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
	s.L = L
	return s
}

// Context returns the context of the call in progress. It is only valid
// inside Go functions called from Lua.
func (s *State) Context() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// DoFile runs a Lua file.
func (s *State) DoFile(ctx context.Context, path string) error {
	return s.run(ctx, func() error { return s.L.DoFile(path) })
}

// DoString runs a Lua chunk.
func (s *State) DoString(ctx context.Context, code string) error {
	return s.run(ctx, func() error { return s.L.DoString(code) })
}

// CallFunc calls fn and returns its first result. args builds the
// arguments while the state is locked; it may be nil.
func (s *State) CallFunc(ctx context.Context, fn *lua.LFunction, args func(L *lua.LState) []lua.LValue) (lua.LValue, error) {
	var ret lua.LValue = lua.LNil
	err := s.run(ctx, func() error {
		var argv []lua.LValue
		if args != nil {
			argv = args(s.L)
		}
		if err := s.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, argv...); err != nil {
			return err
		}
		ret = s.L.Get(-1)
		s.L.Pop(1)
		return nil
	})
	return ret, err
}

func (s *State) run(ctx context.Context, fn func() error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStateClosed
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	prev := s.ctx
	s.ctx = ctx
	s.L.SetContext(ctx)
	defer func() {
		s.ctx = prev
		if prev != nil {
			s.L.SetContext(prev)
		} else {
			s.L.RemoveContext()
		}
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// Close releases the state.
func (s *State) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.L.Close()
	s.closed = true
}
