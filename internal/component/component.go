// Package component implements the server-side component tree mirrored by
// the rendering client.
//
// A component is identified by a stable ID and becomes addressable on the
// client once it is attached to a page. Attribute changes and structural
// changes of attached components are sent to the page's synchronizer as
// invocations; while the synchronizer batches, repeated attribute changes
// coalesce into one write per attribute.
package component

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/uisync/internal/event"
	"github.com/dshills/uisync/internal/invoke"
	"github.com/dshills/uisync/internal/synchronizer"
)

// Errors returned by tree operations.
var (
	ErrHasParent   = errors.New("component already has a parent")
	ErrNoParent    = errors.New("component has no parent")
	ErrCycle       = errors.New("component cannot contain itself")
	ErrForwardLoop = errors.New("forward to self under the same name")
	ErrInvalidAttr = errors.New("invalid attribute name")
)

// Owner is the page a component tree is attached to.
type Owner interface {
	event.Page

	// Synchronizer returns the page's outbound gateway.
	Synchronizer() *synchronizer.Synchronizer

	// Index records an attached component under its ID.
	Index(c *Component)

	// Unindex forgets a detached component.
	Unindex(c *Component)
}

// Component is one node of the tree.
type Component struct {
	id     string
	widget string

	mu       sync.RWMutex
	parent   *Component
	children []*Component
	attrs    map[string]any
	owner    Owner

	listeners event.Listeners
}

// New creates a detached component. An empty id is replaced by a
// generated one.
func New(widget, id string, attrs map[string]any) *Component {
	if id == "" {
		id = uuid.NewString()
	}
	a := make(map[string]any, len(attrs))
	maps.Copy(a, attrs)
	return &Component{id: id, widget: widget, attrs: a}
}

// ID returns the component identifier.
func (c *Component) ID() string { return c.id }

// Widget returns the widget type, such as "button".
func (c *Component) Widget() string { return c.widget }

// String returns "widget#id".
func (c *Component) String() string { return c.widget + "#" + c.id }

// ElementID returns the client-visible identifier. It fails with
// invoke.ErrNotAttached until the component is attached to a page.
func (c *Component) ElementID() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.owner == nil {
		return "", fmt.Errorf("%w: %s", invoke.ErrNotAttached, c)
	}
	return c.id, nil
}

// Owner returns the page the component is attached to, or nil.
func (c *Component) Owner() Owner {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.owner
}

// Page returns the owning page for event attribution.
func (c *Component) Page() event.Page {
	if o := c.Owner(); o != nil {
		return o
	}
	return nil
}

// Attached reports whether the component belongs to a page.
func (c *Component) Attached() bool {
	return c.Owner() != nil
}

// Parent returns the parent component, or nil.
func (c *Component) Parent() *Component {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.parent
}

// Children returns a copy of the child list.
func (c *Component) Children() []*Component {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Component, len(c.children))
	copy(out, c.children)
	return out
}

// Ancestors returns the parent chain, nearest first.
func (c *Component) Ancestors() []*Component {
	var out []*Component
	for p := c.Parent(); p != nil; p = p.Parent() {
		out = append(out, p)
	}
	return out
}

// Walk visits the subtree rooted at c in pre-order until fn returns false.
func (c *Component) Walk(fn func(*Component) bool) bool {
	if !fn(c) {
		return false
	}
	for _, child := range c.Children() {
		if !child.Walk(fn) {
			return false
		}
	}
	return true
}

// Attr returns an attribute value.
func (c *Component) Attr(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.attrs[name]
	return v, ok
}

// Attrs returns a copy of all attributes.
func (c *Component) Attrs() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.attrs)
}

// SetAttr stores an attribute and, when attached, sends it to the client.
// Within one batch only the last value per attribute is transmitted.
func (c *Component) SetAttr(ctx context.Context, name string, value any) error {
	if name == "" || strings.Contains(name, "^") {
		return fmt.Errorf("%w: %q", ErrInvalidAttr, name)
	}
	c.mu.Lock()
	c.attrs[name] = value
	owner := c.owner
	c.mu.Unlock()

	if owner == nil {
		return nil
	}
	inv, err := invoke.New(c, name+"^setAttr", name, value)
	if err != nil {
		return err
	}
	return owner.Synchronizer().Send(ctx, inv)
}

// Call sends a client-side function call targeting the component. spec
// follows the invoke key syntax.
func (c *Component) Call(ctx context.Context, spec string, args ...any) error {
	owner := c.Owner()
	if owner == nil {
		return fmt.Errorf("%w: %s", invoke.ErrNotAttached, c)
	}
	inv, err := invoke.New(c, spec, args...)
	if err != nil {
		return err
	}
	return owner.Synchronizer().Send(ctx, inv)
}

// Append adds child, with its subtree, as the last child of c. When c is
// attached the subtree is attached too and its creation is sent to the
// client as one batch.
func (c *Component) Append(ctx context.Context, child *Component) error {
	if child == c {
		return ErrCycle
	}
	for _, a := range c.Ancestors() {
		if a == child {
			return ErrCycle
		}
	}

	child.mu.Lock()
	if child.parent != nil || child.owner != nil {
		child.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrHasParent, child)
	}
	child.parent = c
	child.mu.Unlock()

	c.mu.Lock()
	c.children = append(c.children, child)
	owner := c.owner
	c.mu.Unlock()

	if owner == nil {
		return nil
	}
	return owner.Synchronizer().SendAll(ctx, attach(child, owner))
}

// Detach removes c from its parent. When attached, the removal is sent to
// the client and the subtree stops being addressable.
func (c *Component) Detach(ctx context.Context) error {
	c.mu.Lock()
	parent := c.parent
	if parent == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoParent, c)
	}
	c.parent = nil
	owner := c.owner
	c.mu.Unlock()

	parent.mu.Lock()
	for i, child := range parent.children {
		if child == c {
			parent.children = append(parent.children[:i:i], parent.children[i+1:]...)
			break
		}
	}
	parent.mu.Unlock()

	if owner == nil {
		return nil
	}
	gone := detach(c, owner)
	// Queued work aimed at the subtree can no longer resolve its target.
	owner.Synchronizer().Discard(func(t invoke.Target) bool {
		n, ok := t.(*Component)
		return ok && gone[n]
	})
	// The parent stays attached, so the target resolves at transmit time.
	inv, err := invoke.New(parent, "remove", c.id)
	if err != nil {
		return err
	}
	return owner.Synchronizer().Send(ctx, inv)
}

// Mount attaches the tree rooted at root to owner and sends its creation
// as one batch. The root's create invocation has no target.
func Mount(ctx context.Context, owner Owner, root *Component) error {
	if root.Parent() != nil || root.Attached() {
		return fmt.Errorf("%w: %s", ErrHasParent, root)
	}
	return owner.Synchronizer().SendAll(ctx, attach(root, owner))
}

// Unmount detaches the whole tree from its page without notifying the
// client, as when the page closes.
func Unmount(root *Component) {
	if owner := root.Owner(); owner != nil {
		detach(root, owner)
	}
}

// attach sets owner on the subtree and returns the create invocations in
// pre-order, each targeting the created component's parent.
func attach(c *Component, owner Owner) []invoke.Invocation {
	var invs []invoke.Invocation
	c.Walk(func(n *Component) bool {
		n.mu.Lock()
		n.owner = owner
		props := maps.Clone(n.attrs)
		n.mu.Unlock()
		owner.Index(n)

		props["id"] = n.id
		props["type"] = n.widget

		var target invoke.Target
		if p := n.Parent(); p != nil {
			target = p
		}
		invs = append(invs, invoke.MustNew(target, "create", props, map[string]any{}))
		return true
	})
	return invs
}

// detach clears owner on the subtree and returns its members.
func detach(c *Component, owner Owner) map[*Component]bool {
	gone := make(map[*Component]bool)
	c.Walk(func(n *Component) bool {
		owner.Unindex(n)
		n.mu.Lock()
		n.owner = nil
		n.mu.Unlock()
		gone[n] = true
		return true
	})
	return gone
}

// Listeners returns the component's listener registry.
func (c *Component) Listeners() *event.Listeners { return &c.listeners }

// On registers l for events named name.
func (c *Component) On(name string, l event.Listener) bool {
	return c.listeners.Add(name, l)
}

// Off unregisters l for events named name.
func (c *Component) Off(name string, l event.Listener) bool {
	return c.listeners.Remove(name, l)
}

// Forward re-fires events named name at target under the name as.
func (c *Component) Forward(name string, target event.Target, as string) error {
	if target == event.Target(c) && as == name {
		return fmt.Errorf("%w: %s %s", ErrForwardLoop, c, name)
	}
	c.listeners.Add(name, event.NewForward(target, as))
	return nil
}

// FireEvent delivers e to the component's listeners.
func (c *Component) FireEvent(ctx context.Context, e event.Event) error {
	return c.listeners.Dispatch(ctx, e)
}

// Fire creates a generic event named name targeting c and sends it.
func (c *Component) Fire(ctx context.Context, name string, data any) error {
	return event.Send(ctx, event.New(ctx, name, c, event.WithData(data)))
}

// Post creates a generic event named name targeting c and defers it to the
// page's queue.
func (c *Component) Post(ctx context.Context, name string, data any) error {
	return event.Post(ctx, event.New(ctx, name, c, event.WithData(data)))
}
