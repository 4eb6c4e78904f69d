package execctx

import (
	"context"
	"fmt"
)

// Resolver looks up live pages by ID.
type Resolver interface {
	Page(id string) (Page, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(id string) (Page, error)

// Page implements Resolver.
func (f ResolverFunc) Page(id string) (Page, error) {
	return f(id)
}

// RunAs runs fn with ctx bound to the page identified by pageID.
//
// If ctx is already bound to that page, fn runs with ctx unchanged. If it is
// bound to another page, RunAs fails with a ConflictError and fn does not run.
// Otherwise fn receives a derived context carrying a new Execution bound to
// the page; the caller's request marker is inherited, or a neutral one is
// synthesized. The derived Execution is destroyed when fn returns or panics,
// so contexts captured by fn stop reporting the page afterwards.
func RunAs(ctx context.Context, r Resolver, pageID string, fn func(ctx context.Context) error) error {
	if r == nil {
		return ErrNoResolver
	}
	page, err := r.Page(pageID)
	if err != nil {
		return fmt.Errorf("run as page %s: %w", pageID, err)
	}
	if page == nil {
		return fmt.Errorf("run as page %s: %w", pageID, ErrPageNotFound)
	}

	outer := From(ctx)
	if current := outer.Page(); current != nil {
		if current.ID() != page.ID() {
			return &ConflictError{Bound: current.ID(), Requested: page.ID()}
		}
		return fn(ctx)
	}

	req := outer.Request()
	if req == nil {
		req = NewRequest(neutralRequestType, nil)
	}
	var session Session
	if sp, ok := page.(SessionProvider); ok {
		session = sp.Session()
	}

	inner, x := New(ctx)
	if err := x.Bind(req, page, session); err != nil {
		return err
	}
	defer x.Destroy()

	return fn(inner)
}
