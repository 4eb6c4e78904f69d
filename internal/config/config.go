// Package config loads uisyncd configuration.
//
// Configuration is read from a TOML or YAML file, then overridden by
// UISYNC_ environment variables. Command-line flags are applied last by
// the caller.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/uisync/internal/logging"
)

// Errors returned by configuration operations.
var (
	// ErrInvalidConfig indicates a value failed validation.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrUnsupportedFormat indicates a config file extension we cannot parse.
	ErrUnsupportedFormat = errors.New("unsupported config format")
)

// Config is the complete daemon configuration.
type Config struct {
	Listen ListenConfig `toml:"listen" yaml:"listen"`
	Log    LogConfig    `toml:"log" yaml:"log"`
	Sync   SyncConfig   `toml:"sync" yaml:"sync"`
	Script ScriptConfig `toml:"script" yaml:"script"`
}

// ListenConfig is where the server accepts client connections.
type ListenConfig struct {
	// Network is "tcp" or "unix".
	Network string `toml:"network" yaml:"network"`
	Address string `toml:"address" yaml:"address"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`

	// Trace lists glob patterns of event types logged on dispatch.
	Trace []string `toml:"trace" yaml:"trace"`

	// Pretty formats outbound batch dumps.
	Pretty bool `toml:"pretty" yaml:"pretty"`
}

// SyncConfig configures outbound synchronization.
type SyncConfig struct {
	// MaxBatch caps invocations per transmission. Zero is unlimited.
	MaxBatch int `toml:"max_batch" yaml:"max_batch"`
}

// ScriptConfig configures Lua page scripts.
type ScriptConfig struct {
	// Path is the page script. Empty serves the built-in demo page.
	Path string `toml:"path" yaml:"path"`

	// Timeout bounds one script call, as a duration string ("5s").
	Timeout string `toml:"timeout" yaml:"timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{
			Network: "tcp",
			Address: "127.0.0.1:7420",
		},
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatAuto,
		},
		Script: ScriptConfig{
			Timeout: "5s",
		},
	}
}

// LoggingConfig returns the logger settings.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format}
}

// ScriptTimeout parses Script.Timeout. Empty means no timeout.
func (c *Config) ScriptTimeout() (time.Duration, error) {
	if c.Script.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Script.Timeout)
	if err != nil {
		return 0, fmt.Errorf("%w: script.timeout: %v", ErrInvalidConfig, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: script.timeout must not be negative", ErrInvalidConfig)
	}
	return d, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error
	switch c.Listen.Network {
	case "tcp", "tcp4", "tcp6", "unix":
	default:
		errs = append(errs, fmt.Errorf("%w: listen.network %q", ErrInvalidConfig, c.Listen.Network))
	}
	if strings.TrimSpace(c.Listen.Address) == "" {
		errs = append(errs, fmt.Errorf("%w: listen.address is empty", ErrInvalidConfig))
	}
	if !logging.ValidFormat(c.Log.Format) {
		errs = append(errs, fmt.Errorf("%w: log.format %q", ErrInvalidConfig, c.Log.Format))
	}
	if c.Sync.MaxBatch < 0 {
		errs = append(errs, fmt.Errorf("%w: sync.max_batch must not be negative", ErrInvalidConfig))
	}
	if _, err := c.ScriptTimeout(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
