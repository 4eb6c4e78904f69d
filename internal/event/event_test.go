package event

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/uisync/internal/execctx"
)

type testPage struct {
	id        string
	dead      atomic.Bool
	pings     atomic.Int32
	queue     *Queue
	listeners Listeners
	comps     map[string]*testTarget
}

func newTestPage(id string) *testPage {
	p := &testPage{id: id, comps: make(map[string]*testTarget)}
	p.queue = NewQueue(p)
	return p
}

func (p *testPage) ID() string         { return p.id }
func (p *testPage) EventQueue() *Queue { return p.queue }
func (p *testPage) Alive() bool        { return !p.dead.Load() }

func (p *testPage) Ping(context.Context, string) error {
	p.pings.Add(1)
	return nil
}

func (p *testPage) FireEvent(ctx context.Context, e Event) error {
	return p.listeners.Dispatch(ctx, e)
}

func (p *testPage) Lookup(id string) (Target, bool) {
	t, ok := p.comps[id]
	if !ok {
		return nil, false
	}
	return t, true
}

func (p *testPage) add(id string) *testTarget {
	t := &testTarget{id: id, page: p}
	p.comps[id] = t
	return t
}

type testTarget struct {
	id        string
	page      *testPage
	listeners Listeners
}

func (t *testTarget) FireEvent(ctx context.Context, e Event) error {
	return t.listeners.Dispatch(ctx, e)
}

func (t *testTarget) Page() Page { return t.page }

// bound returns a context bound to page, as during a processing cycle.
func bound(t *testing.T, page *testPage) context.Context {
	t.Helper()
	ctx, x := execctx.New(context.Background())
	if err := x.Bind(execctx.NewRequest("event", nil), page, nil); err != nil {
		t.Fatalf("Bind() failed: %v", err)
	}
	return ctx
}

// recorder appends a label to a shared log when invoked.
func recorder(log *[]string, label string) Listener {
	return Func(func(context.Context, Event) error {
		*log = append(*log, label)
		return nil
	})
}

func TestStopPropagationHaltsRemaining(t *testing.T) {
	page := newTestPage("p1")
	comp := page.add("c1")
	ctx := context.Background()

	var log []string
	comp.listeners.Add("onClick", recorder(&log, "L1"))
	comp.listeners.Add("onClick", Func(func(_ context.Context, e Event) error {
		log = append(log, "L2")
		e.StopPropagation()
		return nil
	}))
	comp.listeners.Add("onClick", recorder(&log, "L3"))

	e := New(ctx, "onClick", comp)
	if err := Send(ctx, e); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}
	if diff := cmp.Diff([]string{"L1", "L2"}, log); diff != "" {
		t.Errorf("dispatch mismatch (-want +got):\n%s", diff)
	}
	if !e.IsStopped() {
		t.Error("expected event to stay stopped")
	}
}

func TestListenerErrorStopsDispatch(t *testing.T) {
	var log []string
	boom := errors.New("listener failed")
	set := NewListenerSet(
		recorder(&log, "L1"),
		Func(func(context.Context, Event) error { return boom }),
		recorder(&log, "L3"),
	)
	ctx := context.Background()

	if err := set.OnEvent(ctx, New(ctx, "onClick", nil)); !errors.Is(err, boom) {
		t.Fatalf("expected listener error, got %v", err)
	}
	if diff := cmp.Diff([]string{"L1"}, log); diff != "" {
		t.Errorf("dispatch mismatch (-want +got):\n%s", diff)
	}
	if set.Len() != 3 {
		t.Errorf("expected set intact after failure, got %d listeners", set.Len())
	}
}

func TestListenerSetSnapshot(t *testing.T) {
	var log []string
	set := &ListenerSet{}
	late := recorder(&log, "late")
	set.Add(Func(func(context.Context, Event) error {
		log = append(log, "first")
		set.Add(late)
		return nil
	}))
	ctx := context.Background()

	_ = set.OnEvent(ctx, New(ctx, "e", nil))
	if diff := cmp.Diff([]string{"first"}, log); diff != "" {
		t.Fatalf("listener added during dispatch must not run (-want +got):\n%s", diff)
	}
	_ = set.OnEvent(ctx, New(ctx, "e", nil))
	if diff := cmp.Diff([]string{"first", "first", "late"}, log); diff != "" {
		t.Errorf("second dispatch mismatch (-want +got):\n%s", diff)
	}
}

func TestListenerSetDeduplicates(t *testing.T) {
	set := &ListenerSet{}
	l := Func(func(context.Context, Event) error { return nil })
	if !set.Add(l) {
		t.Fatal("expected first Add to succeed")
	}
	if set.Add(l) {
		t.Error("expected duplicate Add to be rejected")
	}

	target := &testTarget{id: "t"}
	if !set.Add(NewForward(target, "onClose")) {
		t.Fatal("expected forward Add to succeed")
	}
	if set.Add(NewForward(target, "onClose")) {
		t.Error("expected equal forward to be rejected")
	}
	if !set.Add(NewForward(target, "onOpen")) {
		t.Error("expected forward with another name to be accepted")
	}
	if !set.Remove(NewForward(target, "onClose")) {
		t.Error("expected Remove by equal forward to succeed")
	}
	if set.Len() != 2 {
		t.Errorf("expected 2 listeners, got %d", set.Len())
	}
}

func TestListenersBuckets(t *testing.T) {
	var ls Listeners
	l := Func(func(context.Context, Event) error { return nil })

	if ls.Has("onClick") {
		t.Fatal("expected no listeners on zero value")
	}
	ls.Add("onClick", l)
	ls.Add("onChange", l)
	if !ls.Has("onClick") {
		t.Fatal("expected listener for onClick")
	}
	if diff := cmp.Diff([]string{"onChange", "onClick"}, ls.Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}

	if !ls.Remove("onClick", l) {
		t.Error("expected Remove to succeed")
	}
	if ls.Has("onClick") {
		t.Error("expected empty bucket to be dropped")
	}
	if ls.Remove("onClick", l) {
		t.Error("expected second Remove to report no change")
	}

	ls.RemoveAll("onChange")
	if len(ls.Names()) != 0 {
		t.Errorf("expected no buckets, got %v", ls.Names())
	}
}

func TestNewResolvesPage(t *testing.T) {
	page := newTestPage("p1")
	comp := page.add("c1")

	if got := New(context.Background(), "onClick", comp).Page(); got != Page(page) {
		t.Errorf("expected page from target, got %v", got)
	}
	if got := New(bound(t, page), "onTimer", nil).Page(); got != Page(page) {
		t.Errorf("expected ambient page, got %v", got)
	}
	if got := New(context.Background(), "onTimer", nil).Page(); got != nil {
		t.Errorf("expected no page, got %v", got)
	}
	other := newTestPage("p2")
	if got := New(context.Background(), "onClick", comp, WithPage(other)).Page(); got != Page(other) {
		t.Errorf("expected explicit page, got %v", got)
	}
}

func TestFromCopiesEverythingButName(t *testing.T) {
	page := newTestPage("p1")
	a, b := page.add("a"), page.add("b")
	src := New(context.Background(), "onClick", a, WithRelated(b), WithData("payload"))
	src.StopPropagation()

	e := From("onClose", src)
	if e.Name() != "onClose" {
		t.Errorf("expected new name, got %q", e.Name())
	}
	if e.Target() != Target(a) || e.CurrentTarget() != Target(a) || e.RelatedTarget() != Target(b) {
		t.Error("expected targets to be copied")
	}
	if e.Data() != "payload" || e.Page() != Page(page) {
		t.Error("expected data and page to be copied")
	}
	if e.IsStopped() {
		t.Error("stop flag must not be copied")
	}
}

func TestSendPageScoped(t *testing.T) {
	page := newTestPage("p1")
	var got Event
	page.listeners.Add("onTimer", Func(func(_ context.Context, e Event) error {
		got = e
		return nil
	}))

	e := New(bound(t, page), "onTimer", nil)
	if err := Send(context.Background(), e); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}
	if got != Event(e) {
		t.Error("expected page-scoped event to reach the page")
	}

	orphan := New(context.Background(), "onTimer", nil)
	if err := Send(context.Background(), orphan); !errors.Is(err, ErrNoTarget) {
		t.Errorf("expected ErrNoTarget, got %v", err)
	}
	if err := Post(context.Background(), orphan); !errors.Is(err, ErrNoPage) {
		t.Errorf("expected ErrNoPage, got %v", err)
	}

	// Posting from inside a cycle gives the orphan the bound page.
	if err := Post(bound(t, page), orphan); err != nil {
		t.Fatalf("Post() failed: %v", err)
	}
	if orphan.Page() != Page(page) || page.EventQueue().Len() != 1 {
		t.Errorf("expected orphan adopted by p1, got page %v and %d queued", orphan.Page(), page.EventQueue().Len())
	}
}

func TestForward(t *testing.T) {
	page := newTestPage("p1")
	src, dst := page.add("src"), page.add("dst")
	ctx := context.Background()

	var received []Event
	dst.listeners.Add("onClose", Func(func(_ context.Context, e Event) error {
		received = append(received, e)
		return nil
	}))
	src.listeners.Add("onClick", NewForward(dst, "onClose"))

	if err := Send(ctx, New(ctx, "onClick", src)); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}
	if len(received) != 1 {
		t.Fatalf("expected 1 forwarded event, got %d", len(received))
	}
	fwd := received[0]
	if fwd.Name() != "onClose" || fwd.Target() != Target(src) || fwd.CurrentTarget() != Target(dst) {
		t.Errorf("unexpected forwarded event: name=%s target=%v current=%v",
			fwd.Name(), fwd.Target(), fwd.CurrentTarget())
	}

	// An event already named onClose and addressed to dst passes through.
	already := From("onClose", fwd)
	if err := NewForward(dst, "onClose").OnEvent(ctx, already); err != nil {
		t.Fatalf("OnEvent() failed: %v", err)
	}
	if len(received) != 2 || received[1] != Event(already) {
		t.Error("expected the same event instance to be re-sent unchanged")
	}
}

func TestQueueFIFO(t *testing.T) {
	page := newTestPage("p1")
	comp := page.add("c1")
	var log []string
	comp.listeners.Add("onTimer", Func(func(_ context.Context, e Event) error {
		log = append(log, e.Data().(string))
		return nil
	}))

	ctx := context.Background()
	for _, label := range []string{"e1", "e2", "e3"} {
		if err := Post(ctx, New(ctx, "onTimer", comp, WithData(label))); err != nil {
			t.Fatalf("Post() failed: %v", err)
		}
	}
	if err := page.EventQueue().ProcessAll(bound(t, page)); err != nil {
		t.Fatalf("ProcessAll() failed: %v", err)
	}
	if diff := cmp.Diff([]string{"e1", "e2", "e3"}, log); diff != "" {
		t.Errorf("delivery order mismatch (-want +got):\n%s", diff)
	}
}

func TestQueueConcurrentPostsKeepPerProducerOrder(t *testing.T) {
	page := newTestPage("p1")
	comp := page.add("c1")
	var log []string
	comp.listeners.Add("onTimer", Func(func(_ context.Context, e Event) error {
		log = append(log, e.Data().(string))
		return nil
	}))

	const producers = 8
	const perProducer = 100
	ctx := context.Background()
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				e := New(ctx, "onTimer", comp, WithData(fmt.Sprintf("%d/%03d", p, i)))
				if err := Post(ctx, e); err != nil {
					t.Errorf("Post() failed: %v", err)
					return
				}
			}
		}(p)
	}
	wg.Wait()

	if err := page.EventQueue().ProcessAll(bound(t, page)); err != nil {
		t.Fatalf("ProcessAll() failed: %v", err)
	}
	if len(log) != producers*perProducer {
		t.Fatalf("expected %d deliveries, got %d", producers*perProducer, len(log))
	}
	last := make(map[string]string)
	for _, entry := range log {
		p, i, _ := strings.Cut(entry, "/")
		if prev, ok := last[p]; ok && prev >= i {
			t.Fatalf("producer %s delivered %s after %s", p, i, prev)
		}
		last[p] = i
	}
	if page.pings.Load() != 1 {
		t.Errorf("expected exactly one ping, got %d", page.pings.Load())
	}
}

func TestPingOnFirstEnqueue(t *testing.T) {
	page := newTestPage("p1")
	other := newTestPage("p2")
	comp := page.add("c1")
	outside := bound(t, other)

	_ = Post(outside, New(outside, "onTimer", comp))
	_ = Post(outside, New(outside, "onTimer", comp))
	if got := page.pings.Load(); got != 1 {
		t.Fatalf("expected one ping for two posts, got %d", got)
	}

	inside := bound(t, page)
	if err := page.EventQueue().ProcessAll(inside); err != nil {
		t.Fatalf("ProcessAll() failed: %v", err)
	}

	_ = Post(inside, New(inside, "onTimer", comp))
	if got := page.pings.Load(); got != 1 {
		t.Errorf("posting from the page's own cycle must not ping, got %d", got)
	}
	_ = page.EventQueue().ProcessAll(inside)

	_ = Post(context.Background(), New(context.Background(), "onTimer", comp))
	if got := page.pings.Load(); got != 2 {
		t.Errorf("expected a new ping after the queue drained, got %d", got)
	}
}

func TestPostRejectsWrongOrDeadPage(t *testing.T) {
	page := newTestPage("p1")
	other := newTestPage("p2")
	comp := other.add("c1")
	ctx := context.Background()

	err := page.EventQueue().Post(ctx, New(ctx, "onTimer", comp))
	if !errors.Is(err, ErrPageMismatch) {
		t.Errorf("expected ErrPageMismatch, got %v", err)
	}
	var mismatch *MismatchError
	if !errors.As(err, &mismatch) || mismatch.Queue != "p1" || mismatch.Event != "p2" {
		t.Errorf("unexpected mismatch error: %v", err)
	}

	if err := page.EventQueue().Post(ctx, New(ctx, "onTimer", nil)); !errors.Is(err, ErrNoPage) {
		t.Errorf("expected ErrNoPage for an event without a page, got %v", err)
	}
	if page.EventQueue().Len() != 0 {
		t.Errorf("expected rejected events to stay out of the queue, got %d", page.EventQueue().Len())
	}

	page.dead.Store(true)
	if err := page.EventQueue().Post(ctx, New(ctx, "onTimer", page)); !errors.Is(err, ErrPageClosed) {
		t.Errorf("expected ErrPageClosed, got %v", err)
	}
	if page.pings.Load() != 0 {
		t.Error("a dead page must not be pinged")
	}
}

func TestProcessAllDeliversEventsPostedDuringProcessing(t *testing.T) {
	page := newTestPage("p1")
	comp := page.add("c1")
	var log []string
	comp.listeners.Add("onTimer", Func(func(ctx context.Context, e Event) error {
		log = append(log, "timer")
		return Post(ctx, New(ctx, "onFollowUp", comp))
	}))
	comp.listeners.Add("onFollowUp", recorder(&log, "follow-up"))

	ctx := bound(t, page)
	_ = Post(ctx, New(ctx, "onTimer", comp))
	if err := page.EventQueue().ProcessAll(ctx); err != nil {
		t.Fatalf("ProcessAll() failed: %v", err)
	}
	if diff := cmp.Diff([]string{"timer", "follow-up"}, log); diff != "" {
		t.Errorf("delivery mismatch (-want +got):\n%s", diff)
	}
	if page.EventQueue().Len() != 0 {
		t.Error("expected drained queue")
	}
}

func TestProcessAllStopsAtError(t *testing.T) {
	page := newTestPage("p1")
	comp := page.add("c1")
	boom := errors.New("boom")
	comp.listeners.Add("onFail", Func(func(context.Context, Event) error { return boom }))

	ctx := bound(t, page)
	_ = Post(ctx, New(ctx, "onFail", comp))
	_ = Post(ctx, New(ctx, "onTimer", comp))

	if err := page.EventQueue().ProcessAll(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected listener error, got %v", err)
	}
	if got := page.EventQueue().Len(); got != 1 {
		t.Errorf("expected remaining event to stay queued, got %d", got)
	}
}
