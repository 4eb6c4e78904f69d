package page

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/uisync/internal/execctx"
)

// Registry holds the live pages of a server. It resolves page IDs for
// execctx.RunAs.
type Registry struct {
	mu    sync.RWMutex
	pages map[string]*Page
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{pages: make(map[string]*Page)}
}

// Add registers p.
func (r *Registry) Add(p *Page) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages[p.ID()] = p
}

// Remove unregisters the page with the given ID and returns it.
func (r *Registry) Remove(id string) (*Page, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pages[id]
	delete(r.pages, id)
	return p, ok
}

// Get returns the live page with the given ID.
func (r *Registry) Get(id string) (*Page, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pages[id]
	return p, ok
}

// Page implements execctx.Resolver.
func (r *Registry) Page(id string) (execctx.Page, error) {
	p, ok := r.Get(id)
	if !ok || !p.Alive() {
		return nil, fmt.Errorf("%w: %s", execctx.ErrPageNotFound, id)
	}
	return p, nil
}

// IDs returns the IDs of all registered pages, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.pages))
	for id := range r.pages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered pages.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pages)
}

// CloseAll closes and unregisters every page.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	pages := r.pages
	r.pages = make(map[string]*Page)
	r.mu.Unlock()

	for _, p := range pages {
		p.Close()
	}
}
