package event

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tidwall/match"
)

// Variant describes how to build one kind of event from a request.
type Variant struct {
	// Name is an exact event type or a glob pattern such as "onMouse*".
	Name string

	// New wraps the generic core in the variant type. Nil produces a
	// plain Base.
	New func(b *Base) Event

	// Fields are bound from the request payload in order.
	Fields []Field

	// Deferred variants are posted to the page queue instead of being
	// sent immediately.
	Deferred bool
}

func (v Variant) build(b *Base) Event {
	if v.New == nil {
		return b
	}
	return v.New(b)
}

// Registry maps event types to variants. Exact names win over patterns;
// among matching patterns the one with the most literal characters wins,
// then the one registered first.
type Registry struct {
	mu       sync.RWMutex
	exact    map[string]Variant
	patterns []Variant
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{exact: make(map[string]Variant)}
}

// Register adds v.
func (r *Registry) Register(v Variant) error {
	if v.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidVariant)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if match.IsPattern(v.Name) {
		for _, p := range r.patterns {
			if p.Name == v.Name {
				return fmt.Errorf("%w: %q", ErrDuplicateVariant, v.Name)
			}
		}
		r.patterns = append(r.patterns, v)
		return nil
	}
	if _, ok := r.exact[v.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateVariant, v.Name)
	}
	r.exact[v.Name] = v
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(v Variant) {
	if err := r.Register(v); err != nil {
		panic(err)
	}
}

// Lookup returns the most specific variant for name.
func (r *Registry) Lookup(name string) (Variant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if v, ok := r.exact[name]; ok {
		return v, true
	}

	var best Variant
	bestScore := -1
	for _, p := range r.patterns {
		if !match.Match(name, p.Name) {
			continue
		}
		if score := literalLen(p.Name); score > bestScore {
			best, bestScore = p, score
		}
	}
	return best, bestScore >= 0
}

// Names returns every registered name, exact names first.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.exact)+len(r.patterns))
	for name := range r.exact {
		names = append(names, name)
	}
	for _, p := range r.patterns {
		names = append(names, p.Name)
	}
	return names
}

// literalLen counts the non-wildcard characters of a pattern.
func literalLen(pattern string) int {
	return len(pattern) - strings.Count(pattern, "*") - strings.Count(pattern, "?")
}
