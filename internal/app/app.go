// Package app wires configuration, logging, the event router, page
// builders and the server into the uisyncd daemon, and manages its
// lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/dshills/uisync/internal/config"
	"github.com/dshills/uisync/internal/event"
	"github.com/dshills/uisync/internal/logging"
	"github.com/dshills/uisync/internal/script"
	"github.com/dshills/uisync/internal/server"
)

// Options configures the application.
type Options struct {
	// ConfigPath is the configuration file. Empty uses defaults and the
	// environment only.
	ConfigPath string

	// Override is applied after the file and environment, typically from
	// command-line flags.
	Override func(*config.Config)

	// Output receives log records. Defaults to stderr.
	Output io.Writer

	// Builder overrides the page builder selected by the config.
	Builder server.Builder
}

// Application is the running daemon.
type Application struct {
	opts Options

	mu  sync.RWMutex
	cfg *config.Config

	log    *slog.Logger
	level  *slog.LevelVar
	router *event.Router
	server *server.Server

	running atomic.Bool
}

// New loads the configuration and builds every component.
func New(opts Options) (*Application, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, &InitError{Component: "config", Err: err}
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	log, level := logging.New(cfg.LoggingConfig(), out)

	app := &Application{
		opts:  opts,
		cfg:   cfg,
		log:   log,
		level: level,
	}
	app.router = event.NewRouter(event.DefaultRegistry(),
		event.WithRouterLogger(log.With("component", "router")),
		event.WithTrace(cfg.Log.Trace...),
	)

	builder := opts.Builder
	if builder == nil {
		builder, err = app.pageBuilder(cfg)
		if err != nil {
			return nil, &InitError{Component: "page builder", Err: err}
		}
	}

	app.server, err = server.New(builder,
		server.WithLogger(log.With("component", "server")),
		server.WithRouter(app.router),
		server.WithMaxBatch(cfg.Sync.MaxBatch),
		server.WithPretty(cfg.Log.Pretty),
	)
	if err != nil {
		return nil, &InitError{Component: "server", Err: err}
	}
	if err := app.server.Handle(RequestStats, app.stats); err != nil {
		return nil, &InitError{Component: "server", Err: err}
	}
	return app, nil
}

func loadConfig(opts Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Override != nil {
		opts.Override(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// pageBuilder returns the Lua builder for the configured script, or the
// built-in demo page.
func (app *Application) pageBuilder(cfg *config.Config) (server.Builder, error) {
	if cfg.Script.Path == "" {
		return &demoBuilder{app: app}, nil
	}
	timeout, err := cfg.ScriptTimeout()
	if err != nil {
		return nil, err
	}
	return script.NewBuilder(
		script.FromFile(cfg.Script.Path),
		script.WithBuilderTimeout(timeout),
		script.WithBuilderLogger(app.log.With("component", "script")),
	)
}

// Config returns the configuration in effect.
func (app *Application) Config() *config.Config {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.cfg
}

// Logger returns the application logger.
func (app *Application) Logger() *slog.Logger { return app.log }

// Server returns the server.
func (app *Application) Server() *server.Server { return app.server }

// IsRunning reports whether Run is in progress.
func (app *Application) IsRunning() bool { return app.running.Load() }

// Apply switches to cfg. Log level and trace patterns change for live
// pages; listen, sync and script settings need a restart.
func (app *Application) Apply(cfg *config.Config) {
	app.mu.Lock()
	prev := app.cfg
	app.cfg = cfg
	app.mu.Unlock()

	app.level.Set(logging.ParseLevel(cfg.Log.Level))
	app.router.SetTrace(cfg.Log.Trace)

	if prev.Listen != cfg.Listen || prev.Sync != cfg.Sync || prev.Script != cfg.Script || prev.Log.Pretty != cfg.Log.Pretty {
		app.log.Warn("config change requires restart", "listen", cfg.Listen.Address)
	}
	app.log.Info("config applied", "level", cfg.Log.Level, "trace", cfg.Log.Trace)
}

// reload applies a config read back from disk. The override is layered on
// top again, and a result that no longer validates is skipped.
func (app *Application) reload(cfg *config.Config) bool {
	if app.opts.Override != nil {
		app.opts.Override(cfg)
		if err := cfg.Validate(); err != nil {
			app.log.Warn("reloaded config rejected", "error", err)
			return false
		}
	}
	app.Apply(cfg)
	return true
}

// Run listens on the configured address and serves until ctx is
// cancelled. With a config file it also reloads the file on change.
func (app *Application) Run(ctx context.Context) error {
	cfg := app.Config()
	l, err := net.Listen(cfg.Listen.Network, cfg.Listen.Address)
	if err != nil {
		return &InitError{Component: "listener", Err: err}
	}
	return app.Serve(ctx, l)
}

// Serve serves on l until ctx is cancelled.
func (app *Application) Serve(ctx context.Context, l net.Listener) error {
	if !app.running.CompareAndSwap(false, true) {
		l.Close()
		return ErrAlreadyRunning
	}
	defer app.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if app.opts.ConfigPath != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := config.Watch(ctx, app.opts.ConfigPath, func(cfg *config.Config) {
				app.reload(cfg)
			}, config.WithWatchLogger(app.log.With("component", "config")))
			if err != nil {
				app.log.Warn("config watch stopped", "error", err)
			}
		}()
	}

	err := app.server.Serve(ctx, l)
	cancel()
	wg.Wait()
	app.server.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serve: %w", err)
	}
	app.log.Info("shutdown complete")
	return nil
}
