package config

import (
	"fmt"
	"strconv"
	"strings"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "UISYNC_"

// envBinding maps one environment variable onto a config field.
type envBinding struct {
	name string
	set  func(c *Config, v string) error
}

var envBindings = []envBinding{
	{"LISTEN_NETWORK", func(c *Config, v string) error { c.Listen.Network = v; return nil }},
	{"LISTEN_ADDRESS", func(c *Config, v string) error { c.Listen.Address = v; return nil }},
	{"LOG_LEVEL", func(c *Config, v string) error { c.Log.Level = v; return nil }},
	{"LOG_FORMAT", func(c *Config, v string) error { c.Log.Format = v; return nil }},
	{"LOG_TRACE", func(c *Config, v string) error { c.Log.Trace = splitList(v); return nil }},
	{"LOG_PRETTY", func(c *Config, v string) error {
		b, err := parseBool(v)
		c.Log.Pretty = b
		return err
	}},
	{"SYNC_MAX_BATCH", func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		c.Sync.MaxBatch = n
		return err
	}},
	{"SCRIPT_PATH", func(c *Config, v string) error { c.Script.Path = v; return nil }},
	{"SCRIPT_TIMEOUT", func(c *Config, v string) error { c.Script.Timeout = v; return nil }},
}

// EnvNames returns the supported environment variables.
func EnvNames() []string {
	names := make([]string, len(envBindings))
	for i, b := range envBindings {
		names[i] = EnvPrefix + b.name
	}
	return names
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		v, ok := lookup(EnvPrefix + b.name)
		if !ok {
			continue
		}
		if err := b.set(cfg, strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("%w: %s%s: %v", ErrInvalidConfig, EnvPrefix, b.name, err)
		}
	}
	return nil
}

// parseBool accepts the spellings people put in environment files.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "on":
		return true, nil
	case "", "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
