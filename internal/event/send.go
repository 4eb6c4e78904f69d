package event

import "context"

// Send delivers e immediately on the calling goroutine. The event goes to
// its current target; an event without one goes to its page, or to the
// page bound to ctx.
func Send(ctx context.Context, e Event) error {
	t := e.CurrentTarget()
	if t == nil {
		t = e.Target()
	}
	if t == nil {
		if p := e.Page(); p != nil {
			t = p
		} else if p := ambientPage(ctx); p != nil {
			t = p
		}
	}
	if t == nil {
		return ErrNoTarget
	}
	return t.FireEvent(ctx, e)
}

// Post defers e to its page's queue. An event without a page is adopted by
// the page bound to ctx when it embeds Base.
func Post(ctx context.Context, e Event) error {
	p := e.Page()
	if p == nil {
		a, ok := e.(adopter)
		if p = ambientPage(ctx); p == nil || !ok {
			return ErrNoPage
		}
		a.adopt(p)
	}
	return p.EventQueue().Post(ctx, e)
}

type adopter interface {
	adopt(p Page)
}
