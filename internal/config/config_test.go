package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
	cfg, err := load("", noEnv)
	if err != nil {
		t.Fatalf("load() failed: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("empty path should yield defaults (-want +got):\n%s", diff)
	}
}

func TestLoadFormats(t *testing.T) {
	want := Default()
	want.Listen.Address = ":9000"
	want.Log.Level = "debug"
	want.Log.Trace = []string{"onMouse*", "onKey*"}
	want.Log.Pretty = true
	want.Sync.MaxBatch = 64

	tests := []struct {
		name    string
		content string
	}{
		{
			name: "uisync.toml",
			content: `
[listen]
address = ":9000"

[log]
level = "debug"
trace = ["onMouse*", "onKey*"]
pretty = true

[sync]
max_batch = 64
`,
		},
		{
			name: "uisync.yaml",
			content: `
listen:
  address: ":9000"
log:
  level: debug
  trace: ["onMouse*", "onKey*"]
  pretty: true
sync:
  max_batch: 64
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := load(writeFile(t, tt.name, tt.content), noEnv)
			if err != nil {
				t.Fatalf("load() failed: %v", err)
			}
			if diff := cmp.Diff(want, cfg); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		target  error
	}{
		{name: "unknown toml key", file: "c.toml", content: "[listen]\nport = 1\n"},
		{name: "unknown yaml key", file: "c.yml", content: "listen:\n  port: 1\n"},
		{name: "bad syntax", file: "c.toml", content: "[listen\n"},
		{name: "json", file: "c.json", content: "{}", target: ErrUnsupportedFormat},
		{name: "negative batch", file: "c.toml", content: "[sync]\nmax_batch = -1\n", target: ErrInvalidConfig},
		{name: "bad format", file: "c.toml", content: "[log]\nformat = \"xml\"\n", target: ErrInvalidConfig},
		{name: "bad timeout", file: "c.toml", content: "[script]\ntimeout = \"soon\"\n", target: ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(writeFile(t, tt.file, tt.content), noEnv)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.target != nil {
				if !errors.Is(err, tt.target) {
					t.Errorf("expected %v, got %v", tt.target, err)
				}
				return
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Errorf("expected ParseError, got %v", err)
			}
		})
	}

	if _, err := load(filepath.Join(t.TempDir(), "missing.toml"), noEnv); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeFile(t, "c.toml", "[listen]\naddress = \":9000\"\n")
	cfg, err := load(path, envMap(map[string]string{
		"UISYNC_LISTEN_ADDRESS": ":9100",
		"UISYNC_LOG_TRACE":      "onClick, onKey* ,",
		"UISYNC_LOG_PRETTY":     "yes",
		"UISYNC_SYNC_MAX_BATCH": "10",
		"UISYNC_SCRIPT_PATH":    "page.lua",
	}))
	if err != nil {
		t.Fatalf("load() failed: %v", err)
	}
	if cfg.Listen.Address != ":9100" {
		t.Errorf("expected env to win over file, got %q", cfg.Listen.Address)
	}
	if diff := cmp.Diff([]string{"onClick", "onKey*"}, cfg.Log.Trace); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}
	if !cfg.Log.Pretty || cfg.Sync.MaxBatch != 10 || cfg.Script.Path != "page.lua" {
		t.Errorf("unexpected config %+v", cfg)
	}

	for _, bad := range []map[string]string{
		{"UISYNC_SYNC_MAX_BATCH": "many"},
		{"UISYNC_LOG_PRETTY": "maybe"},
	} {
		if _, err := load("", envMap(bad)); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("env %v: expected ErrInvalidConfig, got %v", bad, err)
		}
	}
}

func TestEnvNames(t *testing.T) {
	names := EnvNames()
	if len(names) != len(envBindings) || names[0] != "UISYNC_LISTEN_NETWORK" {
		t.Errorf("unexpected env names %v", names)
	}
}

func TestScriptTimeout(t *testing.T) {
	cfg := Default()
	d, err := cfg.ScriptTimeout()
	if err != nil || d != 5*time.Second {
		t.Errorf("expected 5s, got %v (%v)", d, err)
	}
	cfg.Script.Timeout = ""
	if d, _ := cfg.ScriptTimeout(); d != 0 {
		t.Errorf("expected no timeout, got %v", d)
	}
	cfg.Script.Timeout = "-1s"
	if _, err := cfg.ScriptTimeout(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Listen.Network = "udp"
	cfg.Listen.Address = " "
	err := cfg.Validate()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok || len(joined.Unwrap()) != 2 {
		t.Errorf("expected two joined errors, got %v", err)
	}
}

func TestWatchReloads(t *testing.T) {
	path := writeFile(t, "c.toml", "[log]\nlevel = \"info\"\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	w := NewWatcher(path, WithDebounce(10*time.Millisecond))
	w.lookup = noEnv
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(c *Config) { got <- c })
	}()

	// Give the watcher time to register before writing.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case c := <-got:
			if c.Log.Level != "debug" {
				t.Errorf("expected reloaded level debug, got %q", c.Log.Level)
			}
			cancel()
			if err := <-done; err != nil {
				t.Errorf("Run() = %v", err)
			}
			return
		case <-tick.C:
			if err := os.WriteFile(path, []byte("[log]\nlevel = \"debug\"\n"), 0o644); err != nil {
				t.Fatalf("WriteFile() failed: %v", err)
			}
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
}

func TestWatchSkipsInvalid(t *testing.T) {
	path := writeFile(t, "c.toml", "")
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	w := NewWatcher(path, WithDebounce(10*time.Millisecond))
	w.lookup = noEnv
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(path, []byte("[sync]\nmax_batch = -5\n"), 0o644)
	}()
	err := w.Run(ctx, func(c *Config) {
		t.Errorf("invalid config must not be delivered: %+v", c)
	})
	if err != nil {
		t.Errorf("Run() = %v", err)
	}
}
