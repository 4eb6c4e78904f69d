package app

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/dshills/uisync/internal/component"
	"github.com/dshills/uisync/internal/event"
	"github.com/dshills/uisync/internal/page"
)

// RequestStats is the custom request type answered with page statistics.
const RequestStats = "stats"

// ClockInterval is how often the demo page's clock ticks.
const ClockInterval = time.Second

// demoBuilder builds the page served when no script is configured: a
// greeter, a click counter and a clock driven from outside any request.
type demoBuilder struct {
	app      *Application
	interval time.Duration
}

func (b *demoBuilder) Build(ctx context.Context, p *page.Page) error {
	root := p.Root()

	name := component.New("textbox", "name", map[string]any{"placeholder": "Your name"})
	greeting := component.New("label", "greeting", map[string]any{"text": ""})
	button := component.New("button", "count", map[string]any{"text": "Clicked 0 times"})
	clock := component.New("label", "clock", map[string]any{"text": ""})
	for _, c := range []*component.Component{name, greeting, button, clock} {
		if err := root.Append(ctx, c); err != nil {
			return err
		}
	}

	name.On("onChange", event.Func(func(ctx context.Context, e event.Event) error {
		in, ok := e.(*event.InputEvent)
		if !ok {
			return nil
		}
		text := ""
		if in.Value != "" {
			text = "Hello, " + in.Value
		}
		return greeting.SetAttr(ctx, "text", text)
	}))

	clicks := 0
	button.On("onClick", event.Func(func(ctx context.Context, _ event.Event) error {
		clicks++
		return button.SetAttr(ctx, "text", "Clicked "+strconv.Itoa(clicks)+" times")
	}))

	p.On("onTimer", event.Func(func(ctx context.Context, e event.Event) error {
		t, _ := e.Data().(time.Time)
		return clock.SetAttr(ctx, "text", t.Format(time.TimeOnly))
	}))

	interval := b.interval
	if interval <= 0 {
		interval = ClockInterval
	}
	tickCtx, cancel := context.WithCancel(context.Background())
	p.OnClose(cancel)
	go b.tick(tickCtx, p, interval)
	return nil
}

// tick posts an onTimer event to p on every interval, each in its own
// processing cycle.
func (b *demoBuilder) tick(ctx context.Context, p *page.Page, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			err := b.app.server.RunAs(ctx, p.ID(), func(ctx context.Context) error {
				return event.Post(ctx, event.New(ctx, "onTimer", p, event.WithData(now)))
			})
			if err != nil {
				if p.Alive() {
					p.Logger().Warn("clock tick failed", "error", err)
				}
				return
			}
		}
	}
}

// pageStats is the reply to a stats request.
type pageStats struct {
	Page          string `json:"page"`
	Session       string `json:"session"`
	Components    int    `json:"components"`
	Queued        int    `json:"queued"`
	Transmissions uint64 `json:"transmissions"`
	Transmitted   uint64 `json:"transmitted"`
	Coalesced     uint64 `json:"coalesced"`
	Failures      uint64 `json:"failures"`
}

func (app *Application) stats(_ context.Context, p *page.Page, _ json.RawMessage) (any, error) {
	s := p.Synchronizer().Stats()
	return pageStats{
		Page:          p.ID(),
		Session:       p.Session().ID(),
		Components:    p.Len(),
		Queued:        p.EventQueue().Len(),
		Transmissions: s.Transmissions,
		Transmitted:   s.Transmitted,
		Coalesced:     s.Coalesced,
		Failures:      s.Failures,
	}, nil
}
