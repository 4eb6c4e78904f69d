package event

import (
	"context"
	"sync"
)

// Listener reacts to events delivered to a target.
type Listener interface {
	OnEvent(ctx context.Context, e Event) error
}

// Equaler is implemented by listeners with value equality, so that adding
// an equal listener twice is a no-op.
type Equaler interface {
	Equal(other Listener) bool
}

// funcListener adapts a function. It is always used through a pointer so
// each Func call yields a distinct, comparable listener.
type funcListener struct {
	fn func(ctx context.Context, e Event) error
}

func (f *funcListener) OnEvent(ctx context.Context, e Event) error {
	return f.fn(ctx, e)
}

// Func wraps fn as a Listener. Keep the returned value to remove it later.
func Func(fn func(ctx context.Context, e Event) error) Listener {
	return &funcListener{fn: fn}
}

// sameListener reports whether a and b are the same listener. Listener
// implementations without an Equal method must be comparable.
func sameListener(a, b Listener) bool {
	if eq, ok := a.(Equaler); ok {
		return eq.Equal(b)
	}
	return a == b
}

// dispatch delivers e to each listener in order until the event is stopped
// or a listener fails.
func dispatch(ctx context.Context, e Event, listeners []Listener) error {
	for _, l := range listeners {
		if e.IsStopped() {
			return nil
		}
		if err := l.OnEvent(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// ListenerSet is an ordered set of listeners. A ListenerSet is itself a
// Listener, so sets can be nested.
//
// Dispatch iterates over a snapshot taken when delivery starts: listeners
// added or removed during delivery take effect for the next event.
type ListenerSet struct {
	mu   sync.RWMutex
	list []Listener
}

// NewListenerSet creates a set holding ls in order, skipping duplicates.
func NewListenerSet(ls ...Listener) *ListenerSet {
	s := &ListenerSet{}
	for _, l := range ls {
		s.Add(l)
	}
	return s
}

// Add appends l unless an equal listener is already present.
// It reports whether the set changed.
func (s *ListenerSet) Add(l Listener) bool {
	if l == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.list {
		if sameListener(existing, l) {
			return false
		}
	}
	s.list = append(s.list, l)
	return true
}

// Remove drops the listener equal to l. It reports whether the set changed.
func (s *ListenerSet) Remove(l Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.list {
		if sameListener(existing, l) {
			s.list = append(s.list[:i:i], s.list[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports whether a listener equal to l is present.
func (s *ListenerSet) Contains(l Listener) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, existing := range s.list {
		if sameListener(existing, l) {
			return true
		}
	}
	return false
}

// Len returns the number of listeners.
func (s *ListenerSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.list)
}

// Snapshot returns a copy of the listeners in order.
func (s *ListenerSet) Snapshot() []Listener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.list) == 0 {
		return nil
	}
	out := make([]Listener, len(s.list))
	copy(out, s.list)
	return out
}

// OnEvent delivers e to every listener in the set.
func (s *ListenerSet) OnEvent(ctx context.Context, e Event) error {
	return dispatch(ctx, e, s.Snapshot())
}
