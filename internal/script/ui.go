package script

import (
	"context"
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/uisync/internal/component"
	"github.com/dshills/uisync/internal/event"
	"github.com/dshills/uisync/internal/page"
)

// ErrUnknownComponent is raised in Lua for component IDs the page does not
// know.
var ErrUnknownComponent = errors.New("unknown component")

// ListenerError is a failure reported by a Lua listener, either a Lua
// error or a string returned from the listener.
type ListenerError struct {
	Event string
	Err   error
}

// Error implements the error interface.
func (e *ListenerError) Error() string {
	return fmt.Sprintf("lua listener for %s: %v", e.Event, e.Err)
}

// Unwrap returns the underlying error.
func (e *ListenerError) Unwrap() error {
	return e.Err
}

// ui binds the "ui" Lua module to one page.
type ui struct {
	state *State
	page  *page.Page
}

// Install registers the "ui" module for p in s.
func Install(s *State, p *page.Page) {
	m := &ui{state: s, page: p}
	mod := s.L.SetFuncs(s.L.NewTable(), map[string]lua.LGFunction{
		"page_id": m.pageID,
		"append":  m.append,
		"set":     m.set,
		"get":     m.get,
		"on":      m.on,
		"post":    m.post,
		"forward": m.forward,
		"log":     m.log,
	})
	s.L.SetGlobal("ui", mod)
}

// component resolves an ID; "" is the page root.
func (m *ui) component(id string) (*component.Component, bool) {
	if id == "" {
		return m.page.Root(), true
	}
	if c, ok := m.page.Component(id); ok {
		return c, true
	}
	// Before render nothing is indexed yet.
	var found *component.Component
	m.page.Root().Walk(func(c *component.Component) bool {
		if c.ID() == id {
			found = c
			return false
		}
		return true
	})
	return found, found != nil
}

func (m *ui) mustComponent(L *lua.LState, n int) *component.Component {
	id := L.OptString(n, "")
	c, ok := m.component(id)
	if !ok {
		L.RaiseError("%v: %q", ErrUnknownComponent, id)
	}
	return c
}

// ui.page_id() -> string
func (m *ui) pageID(L *lua.LState) int {
	L.Push(lua.LString(m.page.ID()))
	return 1
}

// ui.append(parent_id, widget, id [, attrs]) -> id
func (m *ui) append(L *lua.LState) int {
	parent := m.mustComponent(L, 1)
	widget := L.CheckString(2)
	id := L.OptString(3, "")
	attrs := map[string]any{}
	if t, ok := L.Get(4).(*lua.LTable); ok {
		if converted, ok := toGo(t).(map[string]any); ok {
			attrs = converted
		}
	}

	c := component.New(widget, id, attrs)
	if err := parent.Append(m.state.Context(), c); err != nil {
		L.RaiseError("append %s: %v", c, err)
	}
	L.Push(lua.LString(c.ID()))
	return 1
}

// ui.set(id, attr, value)
func (m *ui) set(L *lua.LState) int {
	c := m.mustComponent(L, 1)
	name := L.CheckString(2)
	if err := c.SetAttr(m.state.Context(), name, toGo(L.Get(3))); err != nil {
		L.RaiseError("set %s.%s: %v", c, name, err)
	}
	return 0
}

// ui.get(id, attr) -> value
func (m *ui) get(L *lua.LState) int {
	c := m.mustComponent(L, 1)
	v, _ := c.Attr(L.CheckString(2))
	L.Push(toLua(L, v))
	return 1
}

// ui.on(id, type, fn); an empty id registers a page-level listener.
func (m *ui) on(L *lua.LState) int {
	id := L.CheckString(1)
	name := L.CheckString(2)
	fn := L.CheckFunction(3)
	l := &Listener{state: m.state, fn: fn}
	if id == "" {
		m.page.On(name, l)
		return 0
	}
	m.mustComponent(L, 1).On(name, l)
	return 0
}

// ui.post(id, type [, data]) defers a generic event.
func (m *ui) post(L *lua.LState) int {
	c := m.mustComponent(L, 1)
	name := L.CheckString(2)
	if err := c.Post(m.state.Context(), name, toGo(L.Get(3))); err != nil {
		L.RaiseError("post %s to %s: %v", name, c, err)
	}
	return 0
}

// ui.forward(id, type, target_id, as)
func (m *ui) forward(L *lua.LState) int {
	c := m.mustComponent(L, 1)
	name := L.CheckString(2)
	target := m.mustComponent(L, 3)
	as := L.CheckString(4)
	if err := c.Forward(name, target, as); err != nil {
		L.RaiseError("forward: %v", err)
	}
	return 0
}

// ui.log(msg, ...)
func (m *ui) log(L *lua.LState) int {
	args := make([]any, 0, L.GetTop())
	for i := 1; i <= L.GetTop(); i++ {
		args = append(args, L.Get(i).String())
	}
	m.state.log.Info(fmt.Sprint(args...), "page", m.page.ID(), "source", "lua")
	return 0
}

// Listener is an event listener implemented by a Lua function. The
// function receives an event table; returning a string fails the
// listener with that message.
type Listener struct {
	state *State
	fn    *lua.LFunction
}

// OnEvent calls the Lua function.
func (l *Listener) OnEvent(ctx context.Context, e event.Event) error {
	ret, err := l.state.CallFunc(ctx, l.fn, func(L *lua.LState) []lua.LValue {
		return []lua.LValue{eventTable(L, e)}
	})
	if err != nil {
		return &ListenerError{Event: e.Name(), Err: err}
	}
	if msg, ok := ret.(lua.LString); ok {
		return &ListenerError{Event: e.Name(), Err: errors.New(string(msg))}
	}
	return nil
}

// eventTable builds the Lua view of e.
func eventTable(L *lua.LState, e event.Event) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("type", lua.LString(e.Name()))
	if c, ok := e.Target().(*component.Component); ok {
		t.RawSetString("target", lua.LString(c.ID()))
	}
	if c, ok := e.RelatedTarget().(*component.Component); ok {
		t.RawSetString("related", lua.LString(c.ID()))
	}
	t.RawSetString("data", toLua(L, e.Data()))
	t.RawSetString("stop", L.NewFunction(func(L *lua.LState) int {
		e.StopPropagation()
		return 0
	}))

	switch v := e.(type) {
	case *event.MouseEvent:
		t.RawSetString("x", lua.LNumber(v.X))
		t.RawSetString("y", lua.LNumber(v.Y))
		t.RawSetString("button", lua.LNumber(v.Button))
	case *event.KeyEvent:
		t.RawSetString("key", lua.LString(v.Key))
		t.RawSetString("code", lua.LNumber(v.Code))
	case *event.InputEvent:
		t.RawSetString("value", lua.LString(v.Value))
		t.RawSetString("previous", lua.LString(v.Previous))
	case *event.CheckEvent:
		t.RawSetString("checked", lua.LBool(v.Checked))
	case *event.OpenEvent:
		t.RawSetString("open", lua.LBool(v.Open))
	case *event.ScrollEvent:
		t.RawSetString("top", lua.LNumber(v.Top))
		t.RawSetString("left", lua.LNumber(v.Left))
	case *event.DropEvent:
		t.RawSetString("x", lua.LNumber(v.X))
		t.RawSetString("y", lua.LNumber(v.Y))
	case *event.SelectEvent:
		items := L.NewTable()
		for _, item := range v.Items {
			if c, ok := item.(*component.Component); ok {
				items.Append(lua.LString(c.ID()))
			}
		}
		t.RawSetString("items", items)
	}
	return t
}
