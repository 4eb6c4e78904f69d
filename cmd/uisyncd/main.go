// Package main is the entry point for the uisync daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/dshills/uisync/internal/app"
	"github.com/dshills/uisync/internal/config"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// flags holds command-line overrides. Only flags the user set are applied.
type flags struct {
	set *flag.FlagSet

	configPath string
	listen     string
	network    string
	logLevel   string
	logFormat  string
	trace      []string
	script     string
	maxBatch   int
	pretty     bool

	showVersion bool
}

func parseFlags(args []string) (*flags, error) {
	f := &flags{set: flag.NewFlagSet("uisyncd", flag.ContinueOnError)}
	fs := f.set
	fs.StringVarP(&f.configPath, "config", "c", "", "Path to configuration file (.toml, .yaml)")
	fs.StringVarP(&f.listen, "listen", "l", "", "Listen address")
	fs.StringVar(&f.network, "network", "", "Listen network (tcp, unix)")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.logFormat, "log-format", "", "Log format (auto, text, json)")
	fs.StringSliceVar(&f.trace, "trace", nil, "Event type patterns to trace, e.g. onMouse*")
	fs.StringVarP(&f.script, "script", "s", "", "Lua page script (default: built-in demo page)")
	fs.IntVar(&f.maxBatch, "max-batch", 0, "Max invocations per transmission (0 = unlimited)")
	fs.BoolVar(&f.pretty, "pretty", false, "Pretty-print outbound batches in debug logs")
	fs.BoolVarP(&f.showVersion, "version", "v", false, "Show version information")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "uisyncd - server-side UI synchronization daemon\n\n")
		fmt.Fprintf(os.Stderr, "Usage: uisyncd [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment:\n  %s\n", strings.Join(config.EnvNames(), "\n  "))
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// apply copies the flags the user set onto cfg.
func (f *flags) apply(cfg *config.Config) {
	if f.set.Changed("listen") {
		cfg.Listen.Address = f.listen
	}
	if f.set.Changed("network") {
		cfg.Listen.Network = f.network
	}
	if f.set.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if f.set.Changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if f.set.Changed("trace") {
		cfg.Log.Trace = f.trace
	}
	if f.set.Changed("script") {
		cfg.Script.Path = f.script
	}
	if f.set.Changed("max-batch") {
		cfg.Sync.MaxBatch = f.maxBatch
	}
	if f.set.Changed("pretty") {
		cfg.Log.Pretty = f.pretty
	}
}

func run(args []string) int {
	f, err := parseFlags(args)
	if err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if f.showVersion {
		fmt.Printf("uisyncd %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		return 0
	}

	application, err := app.New(app.Options{
		ConfigPath: f.configPath,
		Override:   f.apply,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
