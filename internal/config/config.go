// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

// Package config loads host configuration from a YAML file, environment
// variables, and command-line flags, in that order of precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/helioshell/helioshell/internal/xdg"
)

// envPrefix is the prefix for environment variable overrides, e.g.
// HELIOSHELL_MANIFEST_URL.
const envPrefix = "HELIOSHELL_"

// Config is the full host configuration.
type Config struct {
	// ManifestURL is the plugin catalogue endpoint. Required to serve.
	ManifestURL string `koanf:"manifest_url"`

	// BundleBase is the base URL relative bundle locations resolve
	// against. Defaults to the manifest URL's origin when empty.
	BundleBase string `koanf:"bundle_base"`

	// HostVersion is checked against descriptor host ranges. Warn-only.
	HostVersion string `koanf:"host_version"`

	RetryAttempts uint64        `koanf:"retry_attempts"`
	RetryDelay    time.Duration `koanf:"retry_delay"`

	// MetricsAddr serves /metrics, /healthz, /readyz.
	MetricsAddr string `koanf:"metrics_addr"`

	// APIAddr serves the registry query API.
	APIAddr string `koanf:"api_addr"`

	LogFormat string `koanf:"log_format"`
	LogLevel  string `koanf:"log_level"`

	// BundleCache enables the write-through disk cache for fetched
	// bundles under the XDG cache dir.
	BundleCache bool `koanf:"bundle_cache"`

	// PluginAllowlist restricts which catalogue plugin ids are loaded.
	// Glob patterns; empty loads everything.
	PluginAllowlist []string `koanf:"plugin_allowlist"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		RetryAttempts: 3,
		RetryDelay:    500 * time.Millisecond,
		MetricsAddr:   "127.0.0.1:9100",
		APIAddr:       "127.0.0.1:8080",
		LogFormat:     "json",
		LogLevel:      "info",
		BundleCache:   true,
	}
}

// Load assembles the configuration. Precedence, lowest to highest:
// defaults, config file, HELIOSHELL_* environment, flags.
//
// path names an explicit config file; empty falls back to
// $XDG_CONFIG_HOME/helioshell/config.yaml when that exists. flags may be
// nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if path == "" {
		candidate := filepath.Join(xdg.ConfigDir(), "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, oops.In("config").With("path", path).
				Hint("config file unreadable or malformed").Wrap(err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return cfg, oops.In("config").Wrap(err)
	}

	if flags != nil {
		// Flag names use dashes; config keys use underscores.
		provider := posflag.ProviderWithValue(flags, ".", k, func(key, value string) (string, any) {
			return strings.ReplaceAll(key, "-", "_"), value
		})
		if err := k.Load(provider, nil); err != nil {
			return cfg, oops.In("config").Wrap(err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, oops.In("config").Hint("config does not match schema").Wrap(err)
	}
	return cfg, nil
}

// Validate checks the constraints serving requires.
func (c Config) Validate() error {
	if c.ManifestURL == "" {
		return oops.In("config").New("manifest_url is required")
	}
	if c.RetryAttempts == 0 {
		return oops.In("config").New("retry_attempts must be at least 1")
	}
	return nil
}
