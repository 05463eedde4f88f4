package main

import (
	"context"

	"github.com/spf13/pflag"

	"github.com/helioshell/helioshell/internal/config"
	"github.com/helioshell/helioshell/internal/observability"
	"github.com/helioshell/helioshell/internal/registry"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// ConfigLoader assembles the configuration.
	// Default: config.Load
	ConfigLoader func(path string, flags *pflag.FlagSet) (config.Config, error)

	// ManifestSourceFactory creates the catalogue source.
	// Default: manifest.NewFetcher
	ManifestSourceFactory func(cfg config.Config) registry.ManifestSource

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// APIServerFactory creates the registry query API server. metrics may
	// be nil when the observability server is disabled.
	// Default: api.NewServer
	APIServerFactory func(addr string, reg *registry.Registry, metrics *observability.Metrics) APIServer
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// APIServer interface wraps the methods used from api.Server.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}
