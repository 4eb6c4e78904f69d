package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dshills/uisync/internal/page"
)

// ErrNoScript is returned by NewBuilder when neither a path nor code is
// given.
var ErrNoScript = errors.New("no page script")

// Builder builds each page by running a page script in a fresh state.
// The state lives as long as the page.
type Builder struct {
	path    string
	code    string
	timeout time.Duration
	log     *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// FromFile reads the script from path on every build, so edits apply to
// new pages without a restart.
func FromFile(path string) BuilderOption {
	return func(b *Builder) { b.path = path }
}

// FromString uses code as the script.
func FromString(code string) BuilderOption {
	return func(b *Builder) { b.code = code }
}

// WithBuilderTimeout sets the per-call timeout of page states.
func WithBuilderTimeout(d time.Duration) BuilderOption {
	return func(b *Builder) { b.timeout = d }
}

// WithBuilderLogger sets the logger of page states.
func WithBuilderLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) { b.log = l }
}

// NewBuilder creates a script builder.
func NewBuilder(opts ...BuilderOption) (*Builder, error) {
	b := &Builder{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(b)
	}
	if b.path == "" && b.code == "" {
		return nil, ErrNoScript
	}
	if b.path != "" {
		if _, err := os.Stat(b.path); err != nil {
			return nil, fmt.Errorf("page script: %w", err)
		}
	}
	return b, nil
}

// Build runs the script against p.
func (b *Builder) Build(ctx context.Context, p *page.Page) error {
	s := NewState(WithTimeout(b.timeout), WithLogger(b.log))
	Install(s, p)

	var err error
	if b.path != "" {
		err = s.DoFile(ctx, b.path)
	} else {
		err = s.DoString(ctx, b.code)
	}
	if err != nil {
		s.Close()
		return fmt.Errorf("page script: %w", err)
	}
	p.OnClose(s.Close)
	return nil
}
