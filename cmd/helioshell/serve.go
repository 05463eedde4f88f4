// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/helioshell/helioshell/internal/api"
	"github.com/helioshell/helioshell/internal/bundle"
	"github.com/helioshell/helioshell/internal/config"
	"github.com/helioshell/helioshell/internal/logging"
	"github.com/helioshell/helioshell/internal/manifest"
	"github.com/helioshell/helioshell/internal/observability"
	"github.com/helioshell/helioshell/internal/registry"
	"github.com/helioshell/helioshell/internal/resolve"
	"github.com/helioshell/helioshell/internal/runtime"
	"github.com/helioshell/helioshell/internal/xdg"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the plugin host",
		Long: `Start the plugin host: fetch the catalogue, load every plugin into
the shared namespace, and serve metrics and registry queries.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	defaults := config.Default()
	cmd.Flags().String("manifest-url", "", "plugin catalogue endpoint (required)")
	cmd.Flags().String("bundle-base", "", "base URL for relative bundle locations (default: manifest origin)")
	cmd.Flags().String("metrics-addr", defaults.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("api-addr", defaults.APIAddr, "registry query API address (empty = disabled)")
	cmd.Flags().String("log-format", defaults.LogFormat, "log format (json or text)")

	return cmd
}

// runServeWithDeps starts the plugin host with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.ConfigLoader == nil {
		deps.ConfigLoader = config.Load
	}
	if deps.ManifestSourceFactory == nil {
		deps.ManifestSourceFactory = func(cfg config.Config) registry.ManifestSource {
			return manifest.NewFetcher(cfg.ManifestURL, manifest.WithHostVersion(cfg.HostVersion))
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if deps.APIServerFactory == nil {
		deps.APIServerFactory = func(addr string, reg *registry.Registry, metrics *observability.Metrics) APIServer {
			opts := []api.ServerOption{}
			if metrics != nil {
				opts = append(opts, api.WithMetrics(metrics))
			}
			return api.NewServer(addr, reg, opts...)
		}
	}

	cfg, err := deps.ConfigLoader(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logging.SetDefault("helioshell", version, cfg.LogFormat)

	bundleBase := cfg.BundleBase
	if bundleBase == "" {
		bundleBase, err = originOf(cfg.ManifestURL)
		if err != nil {
			return fmt.Errorf("cannot derive bundle base from manifest URL: %w", err)
		}
	}

	slog.Info("starting plugin host",
		"manifest_url", cfg.ManifestURL,
		"bundle_base", bundleBase,
		"log_format", cfg.LogFormat,
	)

	doc, err := runtime.NewDocument(ctx)
	if err != nil {
		return fmt.Errorf("failed to create shared document: %w", err)
	}
	defer doc.Close()

	loaderOpts := []bundle.LoaderOption{}
	if cfg.BundleCache {
		loaderOpts = append(loaderOpts, bundle.WithCacheDir(xdg.BundleCacheDir()))
	}
	loader := bundle.NewLoader(bundle.NewResolver(bundleBase), doc, loaderOpts...)

	reg := registry.New()
	orchestrator := registry.NewOrchestrator(
		deps.ManifestSourceFactory(cfg),
		doc,
		loader,
		resolve.NewResolver(doc),
		reg,
		registry.WithRetry(cfg.RetryAttempts, cfg.RetryDelay),
		registry.WithHostVersion(cfg.HostVersion),
		registry.WithAllowlist(cfg.PluginAllowlist, slog.Default()),
	)

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Ready once the initial load pass has finished.
	var ready atomic.Bool

	var obsServer ObservabilityServer
	var apiMetrics *observability.Metrics
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, ready.Load)
		if provider, ok := obsServer.(interface{ Metrics() *observability.Metrics }); ok {
			apiMetrics = provider.Metrics()
		}
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
	}

	var apiServer APIServer
	if cfg.APIAddr != "" {
		apiServer = deps.APIServerFactory(cfg.APIAddr, reg, apiMetrics)
		apiErrChan, err := apiServer.Start()
		if err != nil {
			stopServer(obsServer, "observability")
			return fmt.Errorf("failed to start api server: %w", err)
		}
		go monitorServerErrors(ctx, cancel, apiErrChan, "api")
	}

	// Initial load pass in the background so the probe endpoints come up
	// immediately; readiness flips when it completes.
	go func() {
		loaded := orchestrator.LoadAll(ctx)
		ready.Store(true)
		slog.Info("initial plugin load complete", "plugins", len(loaded))
	}()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Plugin host started")

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	slog.Info("shutting down...")
	stopServer(apiServer, "api")
	stopServer(obsServer, "observability")
	slog.Info("shutdown complete")
	return nil
}

// originOf reduces a URL to its scheme://host origin.
func originOf(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("URL %q has no origin", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

// stopServer stops a server with a bounded grace period. Nil servers are
// tolerated.
func stopServer(s interface {
	Stop(ctx context.Context) error
}, name string) {
	if s == nil {
		return
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := s.Stop(shutdownCtx); err != nil {
		slog.Warn("error stopping server", "server", name, "error", err)
	}
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// This ensures that server failures trigger graceful shutdown of the entire process.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
		// Context cancelled, exit monitoring
	}
}
