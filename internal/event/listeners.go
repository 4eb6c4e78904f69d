package event

import (
	"context"
	"sort"
	"sync"
)

// Listeners maps event types to listener sets. Empty sets are dropped, so
// Has answers "is anyone listening" without scanning. The zero value is
// ready to use.
type Listeners struct {
	mu     sync.RWMutex
	byName map[string]*ListenerSet
}

// Add registers l for events named name. It reports whether l was new.
func (ls *Listeners) Add(name string, l Listener) bool {
	if l == nil {
		return false
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.byName == nil {
		ls.byName = make(map[string]*ListenerSet)
	}
	set, ok := ls.byName[name]
	if !ok {
		set = &ListenerSet{}
		ls.byName[name] = set
	}
	return set.Add(l)
}

// Remove unregisters l for events named name. It reports whether l was
// registered.
func (ls *Listeners) Remove(name string, l Listener) bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	set, ok := ls.byName[name]
	if !ok {
		return false
	}
	removed := set.Remove(l)
	if set.Len() == 0 {
		delete(ls.byName, name)
	}
	return removed
}

// RemoveAll drops every listener for events named name.
func (ls *Listeners) RemoveAll(name string) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	delete(ls.byName, name)
}

// Reset drops every listener.
func (ls *Listeners) Reset() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.byName = nil
}

// Has reports whether any listener is registered for name.
func (ls *Listeners) Has(name string) bool {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	_, ok := ls.byName[name]
	return ok
}

// Names returns the event types with listeners, sorted.
func (ls *Listeners) Names() []string {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	names := make([]string, 0, len(ls.byName))
	for name := range ls.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns a snapshot of the listeners for name.
func (ls *Listeners) Get(name string) []Listener {
	ls.mu.RLock()
	set := ls.byName[name]
	ls.mu.RUnlock()
	if set == nil {
		return nil
	}
	return set.Snapshot()
}

// Dispatch delivers e to the listeners registered for its type.
func (ls *Listeners) Dispatch(ctx context.Context, e Event) error {
	return dispatch(ctx, e, ls.Get(e.Name()))
}
