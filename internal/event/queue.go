package event

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dshills/uisync/internal/execctx"
	"github.com/dshills/uisync/internal/logging"
)

// Ping reason sent when a deferred event arrives from outside the page's
// processing cycle.
const PingReason = "events"

// Queue holds a page's deferred events in FIFO order.
//
// Producers may call Post from any goroutine. ProcessAll is serialized
// separately from the queue itself, so listeners running during
// processing may post further events; those are delivered in the same
// drain.
type Queue struct {
	page Page
	log  *slog.Logger

	mu     sync.Mutex
	events []Event

	// proc serializes drains.
	proc sync.Mutex
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithQueueLogger sets the logger used for failed pings.
func WithQueueLogger(l *slog.Logger) QueueOption {
	return func(q *Queue) { q.log = l }
}

// NewQueue creates the event queue owned by page.
func NewQueue(page Page, opts ...QueueOption) *Queue {
	q := &Queue{page: page}
	for _, opt := range opts {
		opt(q)
	}
	q.log = logging.OrDiscard(q.log)
	return q
}

// Post appends e, which must belong to the queue's page.
//
// If the queue was empty and the caller is not running inside this page's
// own processing cycle, the page's client is pinged once.
func (q *Queue) Post(ctx context.Context, e Event) error {
	p := e.Page()
	if p == nil {
		return fmt.Errorf("post %s to page %s: %w", e.Name(), q.page.ID(), ErrNoPage)
	}
	if p != q.page {
		return &MismatchError{Queue: q.page.ID(), Event: p.ID()}
	}
	if !q.page.Alive() {
		return ErrPageClosed
	}

	q.mu.Lock()
	wasEmpty := len(q.events) == 0
	q.events = append(q.events, e)
	q.mu.Unlock()

	if wasEmpty && execctx.CurrentPageID(ctx) != q.page.ID() {
		if err := q.page.Ping(ctx, PingReason); err != nil {
			q.log.Warn("ping failed", "page", q.page.ID(), "event", e.Name(), "error", err)
		}
	}
	return nil
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Clear drops every queued event.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = nil
}

func (q *Queue) pop() Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return nil
	}
	e := q.events[0]
	q.events[0] = nil
	q.events = q.events[1:]
	if len(q.events) == 0 {
		q.events = nil
	}
	return e
}

// ProcessAll delivers queued events in order until the queue is empty,
// including events posted while processing. It stops at the first
// delivery error; events after the failing one stay queued.
func (q *Queue) ProcessAll(ctx context.Context) error {
	q.proc.Lock()
	defer q.proc.Unlock()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		e := q.pop()
		if e == nil {
			return nil
		}
		if err := Send(ctx, e); err != nil {
			return err
		}
	}
}
