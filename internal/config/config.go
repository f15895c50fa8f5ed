// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

// Package config loads barrier configuration from defaults, an optional
// YAML file and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"io/fs"
	"net/url"
	"os"
	"slices"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/barrier-gate/barrier/internal/credstore"
	"github.com/barrier-gate/barrier/internal/logging"
	"github.com/barrier-gate/barrier/internal/xdg"
)

// Error codes.
const (
	CodeInvalid    = "CONFIG_INVALID"
	CodeLoadFailed = "CONFIG_LOAD_FAILED"
)

// EnvConfigPath names the environment variable that overrides the default
// config file location.
const EnvConfigPath = "BARRIER_CONFIG"

// Flag names bound to configuration keys.
const (
	FlagServer      = "server"
	FlagTimeout     = "timeout"
	FlagStore       = "store"
	FlagStorePath   = "store-path"
	FlagStoreDSN    = "store-dsn"
	FlagProfile     = "profile"
	FlagLogFormat   = "log-format"
	FlagLogLevel    = "log-level"
	FlagInterval    = "interval"
	FlagMetricsAddr = "metrics-addr"
	FlagRetries     = "retries"
	FlagRetryDelay  = "retry-delay"
)

var flagKeys = map[string]string{
	FlagServer:      "server.url",
	FlagTimeout:     "server.timeout",
	FlagStore:       "store.backend",
	FlagStorePath:   "store.path",
	FlagStoreDSN:    "store.dsn",
	FlagProfile:     "store.profile",
	FlagLogFormat:   "log.format",
	FlagLogLevel:    "log.level",
	FlagInterval:    "watch.interval",
	FlagMetricsAddr: "watch.metrics_addr",
	FlagRetries:     "gates.open_retries",
	FlagRetryDelay:  "gates.retry_delay",
}

// Config is the complete barrier configuration.
type Config struct {
	Server ServerConfig `koanf:"server"`
	Store  StoreConfig  `koanf:"store"`
	Log    LogConfig    `koanf:"log"`
	Watch  WatchConfig  `koanf:"watch"`
	Gates  GatesConfig  `koanf:"gates"`
}

// ServerConfig locates the gate-control service.
type ServerConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// StoreConfig selects the credential store.
type StoreConfig struct {
	Backend string `koanf:"backend"`
	Path    string `koanf:"path"`
	DSN     string `koanf:"dsn"`
	Profile string `koanf:"profile"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// WatchConfig configures the long-running watch mode.
type WatchConfig struct {
	Interval    time.Duration `koanf:"interval"`
	MetricsAddr string        `koanf:"metrics_addr"`
}

// GatesConfig configures gate commands.
type GatesConfig struct {
	OpenRetries uint64        `koanf:"open_retries"`
	RetryDelay  time.Duration `koanf:"retry_delay"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			URL:     "http://localhost:7000",
			Timeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Backend: credstore.BackendFile,
			Profile: credstore.DefaultProfile,
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
		Watch: WatchConfig{
			Interval:    time.Minute,
			MetricsAddr: "127.0.0.1:9180",
		},
		Gates: GatesConfig{
			OpenRetries: 2,
			RetryDelay:  500 * time.Millisecond,
		},
	}
}

// Options controls where Load reads from.
type Options struct {
	// Path is an explicit config file; it must exist. Empty falls back to
	// $BARRIER_CONFIG, then to the XDG default, which may be absent.
	Path string
	// Flags overrides file values for every flag the user set.
	Flags *pflag.FlagSet
}

// Load builds and validates the configuration.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	path, required := resolvePath(opts.Path)
	if path != "" && !required {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code(CodeLoadFailed).With("path", path).Wrap(err)
		}
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code(CodeLoadFailed).With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code(CodeLoadFailed).With("operation", "decode").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolvePath(explicit string) (path string, required bool) {
	if explicit != "" {
		return explicit, true
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env, true
	}
	path, err := xdg.ConfigFile()
	if err != nil {
		return "", false
	}
	return path, false
}

// Validate checks every field.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return invalid("server.url", "server URL is required")
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("server.url", "server URL must be an absolute http or https URL, got %q", c.Server.URL)
	}
	if c.Server.Timeout < 0 {
		return invalid("server.timeout", "timeout cannot be negative")
	}

	if !slices.Contains(credstore.Backends, c.Store.Backend) {
		return invalid("store.backend", "unknown store backend %q (want one of %v)", c.Store.Backend, credstore.Backends)
	}
	if c.Store.Backend == credstore.BackendPostgres && c.Store.DSN == "" {
		return invalid("store.dsn", "postgres store requires a DSN")
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		return invalid("log.format", "log format must be text or json, got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "%v", err)
	}

	if c.Watch.Interval <= 0 {
		return invalid("watch.interval", "watch interval must be positive")
	}
	if c.Gates.RetryDelay <= 0 {
		return invalid("gates.retry_delay", "retry delay must be positive")
	}
	return nil
}

// Credstore returns the credential store configuration.
func (s StoreConfig) Credstore() credstore.Config {
	return credstore.Config{
		Backend: s.Backend,
		Path:    s.Path,
		DSN:     s.DSN,
		Profile: s.Profile,
	}
}

func invalid(field, format string, args ...any) error {
	return oops.Code(CodeInvalid).With("field", field).Errorf(format, args...)
}
