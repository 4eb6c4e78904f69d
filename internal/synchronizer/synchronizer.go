// Package synchronizer is the per-connection outbound gateway to the
// rendering client.
//
// A Synchronizer is either NORMAL, where every Send is transmitted at once,
// or BATCHING, where sends are coalesced in an invoke.Queue until
// StopQueueing transmits them as one ordered batch.
package synchronizer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dshills/uisync/internal/invoke"
	"github.com/dshills/uisync/internal/logging"
)

// ErrClosed is returned after the synchronizer's connection has ended.
var ErrClosed = errors.New("synchronizer closed")

// Channel hands invocation batches to the transport. Transmit must not
// block on the network for long; it is called with the transmit lock held.
type Channel interface {
	Transmit(ctx context.Context, batch []invoke.Invocation) error
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(ctx context.Context, batch []invoke.Invocation) error

// Transmit implements Channel.
func (f ChannelFunc) Transmit(ctx context.Context, batch []invoke.Invocation) error {
	return f(ctx, batch)
}

// Synchronizer batches or forwards invocations for one connection.
type Synchronizer struct {
	ch    Channel
	queue *invoke.Queue
	log   *slog.Logger

	maxBatch int

	// mu guards queueing and closed, and orders enqueue against flush.
	mu       sync.Mutex
	queueing bool
	closed   bool

	// txMu serializes transmissions. It is acquired before mu is released
	// so transmissions leave in the order their state transitions happened.
	txMu sync.Mutex

	transmissions atomic.Uint64
	transmitted   atomic.Uint64
	failures      atomic.Uint64
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Synchronizer) {
		s.log = logging.OrDiscard(l)
	}
}

// WithMaxBatch limits how many invocations one Transmit call carries. A
// larger flush is split into consecutive chunks. Zero means unlimited.
func WithMaxBatch(n int) Option {
	return func(s *Synchronizer) {
		if n >= 0 {
			s.maxBatch = n
		}
	}
}

// New creates a synchronizer writing to ch.
func New(ch Channel, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		ch:    ch,
		queue: invoke.NewQueue(),
		log:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartQueueing enters BATCHING mode. Calling it while batching is a no-op.
func (s *Synchronizer) StartQueueing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queueing = true
}

// StopQueueing returns to NORMAL mode and transmits everything queued as
// one ordered unit.
func (s *Synchronizer) StopQueueing(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.queueing = false
	batch := s.queue.Flush()
	s.txMu.Lock()
	s.mu.Unlock()
	defer s.txMu.Unlock()

	return s.transmit(ctx, batch)
}

// IsQueueing reports whether the synchronizer is in BATCHING mode.
func (s *Synchronizer) IsQueueing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queueing
}

// Send transmits inv, or queues it while batching.
func (s *Synchronizer) Send(ctx context.Context, inv invoke.Invocation) error {
	return s.SendAll(ctx, []invoke.Invocation{inv})
}

// SendAll transmits invs in order, or queues them while batching.
func (s *Synchronizer) SendAll(ctx context.Context, invs []invoke.Invocation) error {
	if len(invs) == 0 {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.queueing {
		s.queue.EnqueueAll(invs)
		s.mu.Unlock()
		return nil
	}
	s.txMu.Lock()
	s.mu.Unlock()
	defer s.txMu.Unlock()

	return s.transmit(ctx, invs)
}

// Discard drops queued invocations whose target matches. Targets that
// leave the page while batching must not reach the flush.
func (s *Synchronizer) Discard(match func(invoke.Target) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.queue.Drop(func(inv invoke.Invocation) bool {
		return inv.Target() != nil && match(inv.Target())
	})
	if n > 0 {
		s.log.Debug("discarded queued invocations", "count", n)
	}
	return n
}

// CreateWidget sends a "create" invocation for a new widget under parent.
// Creates are never coalesced.
func (s *Synchronizer) CreateWidget(ctx context.Context, parent invoke.Target, props, state map[string]any) error {
	inv, err := invoke.New(parent, "create", props, state)
	if err != nil {
		return err
	}
	return s.Send(ctx, inv)
}

// transmit writes batch in maxBatch-sized chunks. Callers hold txMu.
func (s *Synchronizer) transmit(ctx context.Context, batch []invoke.Invocation) error {
	for len(batch) > 0 {
		n := len(batch)
		if s.maxBatch > 0 && n > s.maxBatch {
			n = s.maxBatch
		}
		if err := s.ch.Transmit(ctx, batch[:n]); err != nil {
			s.failures.Add(1)
			s.log.Warn("transmit failed", "invocations", n, "error", err)
			return err
		}
		s.transmissions.Add(1)
		s.transmitted.Add(uint64(n))
		batch = batch[n:]
	}
	return nil
}

// Close discards queued work. Subsequent sends fail with ErrClosed.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.queueing = false
	s.queue.Clear()
}

// IsClosed reports whether Close has been called.
func (s *Synchronizer) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Stats is a snapshot of synchronizer counters.
type Stats struct {
	// Transmissions is the number of Transmit calls that succeeded.
	Transmissions uint64

	// Transmitted is the number of invocations handed to the channel.
	Transmitted uint64

	// Coalesced is the number of queued invocations replaced by a later one.
	Coalesced uint64

	// Failures is the number of Transmit calls that returned an error.
	Failures uint64

	// QueueDepth is the number of invocations waiting for StopQueueing.
	QueueDepth int
}

// Stats returns current counters.
func (s *Synchronizer) Stats() Stats {
	return Stats{
		Transmissions: s.transmissions.Load(),
		Transmitted:   s.transmitted.Load(),
		Coalesced:     s.queue.Coalesced(),
		Failures:      s.failures.Load(),
		QueueDepth:    s.queue.Len(),
	}
}
