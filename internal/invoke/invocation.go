package invoke

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
)

var (
	// ErrMalformedKey is returned for an unparsable function spec.
	ErrMalformedKey = errors.New("malformed invocation key")

	// ErrNotAttached is returned by targets that have no client-visible ID yet.
	ErrNotAttached = errors.New("target not attached to a page")
)

// Target is a live widget handle an invocation can address. Its element ID
// is resolved when the invocation is transmitted, never before. Targets are
// compared by identity and must be comparable; pointer types are.
type Target interface {
	ElementID() (string, error)
}

// Key is the coalescing identity of an invocation.
type Key struct {
	target Target
	name   string
	seq    uint64
}

// String returns a readable form of the key for logs.
func (k Key) String() string {
	if k.seq != 0 {
		return fmt.Sprintf("#%d", k.seq)
	}
	if k.target == nil {
		return k.name
	}
	if id, err := k.target.ElementID(); err == nil {
		return id + "/" + k.name
	}
	return fmt.Sprintf("%p/%s", k.target, k.name)
}

// Unique reports whether the key never coalesces with another.
func (k Key) Unique() bool {
	return k.seq != 0
}

var uniqueSeq atomic.Uint64

// Invocation is one remote call. It is immutable once created.
type Invocation struct {
	target   Target
	function string
	args     []any
	key      Key
}

// New creates an invocation from a function spec (see package doc).
func New(target Target, spec string, args ...any) (Invocation, error) {
	keyName, function, explicit, err := parseSpec(spec)
	if err != nil {
		return Invocation{}, err
	}

	var key Key
	switch {
	case !explicit:
		key = Key{seq: uniqueSeq.Add(1)}
	case keyName == "":
		key = Key{target: target, name: function}
	default:
		key = Key{target: target, name: keyName}
	}

	copied := make([]any, len(args))
	copy(copied, args)

	return Invocation{
		target:   target,
		function: function,
		args:     copied,
		key:      key,
	}, nil
}

// MustNew is like New but panics on a malformed spec. It is intended for
// specs that are compile-time constants.
func MustNew(target Target, spec string, args ...any) Invocation {
	inv, err := New(target, spec, args...)
	if err != nil {
		panic(err)
	}
	return inv
}

func parseSpec(spec string) (key, function string, explicit bool, err error) {
	if spec == "" {
		return "", "", false, fmt.Errorf("%w: empty spec", ErrMalformedKey)
	}
	if strings.Count(spec, "^") > 1 {
		return "", "", false, fmt.Errorf("%w: %q has more than one '^'", ErrMalformedKey, spec)
	}
	key, function, explicit = strings.Cut(spec, "^")
	if !explicit {
		function = key
		key = ""
	}
	if function == "" {
		return "", "", false, fmt.Errorf("%w: %q has no function name", ErrMalformedKey, spec)
	}
	return key, function, explicit, nil
}

// Target returns the target, or nil for a global call.
func (inv Invocation) Target() Target {
	return inv.target
}

// Function returns the client-side function name.
func (inv Invocation) Function() string {
	return inv.function
}

// Args returns a copy of the argument list.
func (inv Invocation) Args() []any {
	out := make([]any, len(inv.args))
	copy(out, inv.args)
	return out
}

// Key returns the coalescing key.
func (inv Invocation) Key() Key {
	return inv.key
}

// TargetID resolves the target's client-visible ID. A global call yields
// ("", nil).
func (inv Invocation) TargetID() (string, error) {
	if inv.target == nil {
		return "", nil
	}
	return inv.target.ElementID()
}

// String returns a readable form for logs.
func (inv Invocation) String() string {
	return fmt.Sprintf("%s(%s)", inv.function, inv.key)
}
