package event

import "context"

// Forward is a listener that re-fires events at another target under a new
// name. Two forwards are equal when they share target and name, so a
// component cannot accumulate duplicate forwards.
//
// An event that already has the forward's name and is already addressed to
// its target is re-sent unchanged rather than wrapped again. A Forward must
// not be registered on its own target for its own name.
type Forward struct {
	target Target
	name   string
}

// NewForward creates a forward to target under name. target must be
// comparable.
func NewForward(target Target, name string) *Forward {
	return &Forward{target: target, name: name}
}

// Target returns the forward destination.
func (f *Forward) Target() Target { return f.target }

// Name returns the event name used when forwarding.
func (f *Forward) Name() string { return f.name }

// OnEvent forwards e.
func (f *Forward) OnEvent(ctx context.Context, e Event) error {
	if e.Name() == f.name && e.CurrentTarget() == f.target {
		return Send(ctx, e)
	}
	return Send(ctx, From(f.name, e, WithCurrentTarget(f.target)))
}

// Equal reports whether other forwards to the same target and name.
func (f *Forward) Equal(other Listener) bool {
	o, ok := other.(*Forward)
	return ok && o.target == f.target && o.name == f.name
}
