package event

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/tidwall/gjson"
	"github.com/tidwall/match"

	"github.com/dshills/uisync/internal/logging"
)

// Router turns event request payloads into events and delivers them.
//
// A payload is a JSON object:
//
//	{"type": "onChange", "target": "name", "value": "Ada", "data": {...}}
//
// "type" selects the variant, "target" and "related" name components of
// the page, "data" becomes the opaque payload and every other key is
// available to the variant's fields.
type Router struct {
	reg   *Registry
	log   *slog.Logger
	trace atomic.Pointer[[]string]
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterLogger sets the router's logger.
func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) { r.log = l }
}

// WithTrace sets the glob patterns of event types logged at debug level.
func WithTrace(patterns ...string) RouterOption {
	return func(r *Router) { r.SetTrace(patterns) }
}

// NewRouter creates a router over reg. A nil reg uses DefaultRegistry.
func NewRouter(reg *Registry, opts ...RouterOption) *Router {
	if reg == nil {
		reg = DefaultRegistry()
	}
	r := &Router{reg: reg}
	for _, opt := range opts {
		opt(r)
	}
	r.log = logging.OrDiscard(r.log)
	return r
}

// Registry returns the router's variant registry.
func (r *Router) Registry() *Registry { return r.reg }

// SetTrace replaces the trace patterns. Safe for concurrent use.
func (r *Router) SetTrace(patterns []string) {
	p := append([]string(nil), patterns...)
	r.trace.Store(&p)
}

func (r *Router) traced(name string) bool {
	p := r.trace.Load()
	if p == nil {
		return false
	}
	for _, pattern := range *p {
		if match.Match(name, pattern) {
			return true
		}
	}
	return false
}

// Resolve builds the event described by data for page. Unknown types,
// unknown components and failed required fields are errors; no event is
// produced in those cases.
func (r *Router) Resolve(ctx context.Context, page Page, data []byte) (Event, Variant, error) {
	if !gjson.ValidBytes(data) {
		return nil, Variant{}, ErrInvalidPayload
	}
	payload := gjson.ParseBytes(data)
	if !payload.IsObject() {
		return nil, Variant{}, ErrInvalidPayload
	}

	name := payload.Get("type").String()
	if name == "" {
		return nil, Variant{}, fmt.Errorf("%w: missing type", ErrUnknownEvent)
	}
	variant, ok := r.reg.Lookup(name)
	if !ok {
		return nil, Variant{}, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}

	target, err := lookupRef(page, payload.Get("target"))
	if err != nil {
		return nil, Variant{}, err
	}
	related, err := lookupRef(page, payload.Get("related"))
	if err != nil {
		return nil, Variant{}, err
	}

	opts := []Option{WithPage(page)}
	if related != nil {
		opts = append(opts, WithRelated(related))
	}
	if d := payload.Get("data"); d.Exists() {
		opts = append(opts, WithData(d.Value()))
	}

	e := variant.build(New(ctx, name, target, opts...))
	if err := bindFields(e, variant.Fields, payload, page); err != nil {
		return nil, Variant{}, err
	}
	return e, variant, nil
}

// Route resolves data and sends the event, or posts it when its variant
// is deferred.
func (r *Router) Route(ctx context.Context, page Page, data []byte) error {
	e, variant, err := r.Resolve(ctx, page, data)
	if err != nil {
		return err
	}
	if r.traced(e.Name()) {
		r.log.Debug("event",
			"page", page.ID(),
			"type", e.Name(),
			"variant", variant.Name,
			"deferred", variant.Deferred,
			"payload", string(data),
		)
	}
	if variant.Deferred {
		return Post(ctx, e)
	}
	return Send(ctx, e)
}

func lookupRef(page Page, ref gjson.Result) (Target, error) {
	if !ref.Exists() || ref.Type == gjson.Null || ref.String() == "" {
		return nil, nil
	}
	if page == nil {
		return nil, ErrNoPage
	}
	t, ok := page.Lookup(ref.String())
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, ref.String())
	}
	return t, nil
}
