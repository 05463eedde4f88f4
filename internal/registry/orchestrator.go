// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/helioshell/helioshell/internal/logging"
	"github.com/helioshell/helioshell/internal/manifest"
	"github.com/helioshell/helioshell/internal/resolve"
	"github.com/helioshell/helioshell/pkg/errutil"
)

var (
	pluginsLoaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helioshell_plugins_loaded_total",
		Help: "Total number of plugins that reached the loaded state",
	})
	pluginsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helioshell_plugins_failed_total",
		Help: "Total number of plugins that reached the failed state",
	})
	loadRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helioshell_plugin_load_retries_total",
		Help: "Total number of retried plugin load attempts",
	})
	placeholderModules = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helioshell_placeholder_modules_total",
		Help: "Total number of modules that degraded to placeholders",
	})
)

// DefaultRetryAttempts is how many times one plugin load is attempted
// before the plugin is marked failed.
const DefaultRetryAttempts = 3

// DefaultRetryDelay is the constant pause between load attempts.
const DefaultRetryDelay = 500 * time.Millisecond

// ManifestSource provides the plugin catalogue. Implemented by
// manifest.Fetcher.
type ManifestSource interface {
	Fetch(ctx context.Context) []manifest.PluginDescriptor
}

// BundleLoader fetches and executes a plugin's entry bundle. Implemented
// by bundle.Loader.
type BundleLoader interface {
	Load(ctx context.Context, desc *manifest.PluginDescriptor) error
}

// ScopeResolver locates scope containers and resolves modules out of
// them. Implemented by resolve.Resolver.
type ScopeResolver interface {
	ResolveScope(scopeName, pluginID string) (resolve.Container, error)
	ResolveModule(ctx context.Context, container resolve.Container, desc *manifest.ModuleDescriptor, pluginID string) resolve.Resolved
}

// Sharer negotiates the shared-dependency scope. Implemented by
// runtime.Document.
type Sharer interface {
	EnsureSharing()
}

// entry is the per-plugin state cell. Its presence in the orchestrator
// map means the plugin is loading or terminal; done closing publishes
// the outcome. plugin stays nil for failed loads.
type entry struct {
	done   chan struct{}
	plugin *LoadedPlugin
}

// Orchestrator drives plugin loads through their lifecycle:
// unrequested, loading, then terminally loaded or failed.
//
// Idempotence is structural. Each plugin id owns exactly one entry for
// the process lifetime: concurrent requests for an id share the single
// in-flight attempt, later requests get the cached terminal outcome,
// and a failed plugin is never re-attempted.
type Orchestrator struct {
	source   ManifestSource
	sharer   Sharer
	loader   BundleLoader
	resolver ScopeResolver
	registry *Registry
	logger   *slog.Logger

	attempts    uint64
	delay       time.Duration
	allow       []glob.Glob
	hostVersion string

	mu        sync.Mutex
	entries   map[string]*entry
	catalogue map[string]manifest.PluginDescriptor
	order     []string
}

// OrchestratorOption configures the Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithRetry overrides the attempt count and the constant delay between
// attempts.
func WithRetry(attempts uint64, delay time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if attempts > 0 {
			o.attempts = attempts
		}
		o.delay = delay
	}
}

// WithAllowlist restricts LoadAll to plugin ids matching at least one of
// the given glob patterns. Invalid patterns are skipped with a warning.
// Load by explicit id is not subject to the allowlist.
func WithAllowlist(patterns []string, logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		for _, p := range patterns {
			g, err := glob.Compile(p)
			if err != nil {
				logger.Warn("invalid allowlist pattern skipped", "pattern", p, "error", err)
				continue
			}
			o.allow = append(o.allow, g)
		}
	}
}

// WithHostVersion sets the host version checked against descriptor host
// ranges. Empty skips the check.
func WithHostVersion(v string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.hostVersion = v
	}
}

// WithOrchestratorLogger sets the logger for load diagnostics.
func WithOrchestratorLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// NewOrchestrator wires the load pipeline together.
func NewOrchestrator(source ManifestSource, sharer Sharer, loader BundleLoader, resolver ScopeResolver, reg *Registry, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		source:    source,
		sharer:    sharer,
		loader:    loader,
		resolver:  resolver,
		registry:  reg,
		logger:    slog.Default(),
		attempts:  DefaultRetryAttempts,
		delay:     DefaultRetryDelay,
		entries:   make(map[string]*entry),
		catalogue: make(map[string]manifest.PluginDescriptor),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Load loads the plugin with the given id, or returns its cached outcome.
//
// The return is nil for any failure: unknown id, bundle failure after all
// retries, missing scope, or no loadable modules. Failures are terminal;
// errors are logged here and never propagate, so one broken plugin cannot
// take the host down.
func (o *Orchestrator) Load(ctx context.Context, id string) *LoadedPlugin {
	o.mu.Lock()
	if e, ok := o.entries[id]; ok {
		o.mu.Unlock()
		select {
		case <-e.done:
			return e.plugin
		case <-ctx.Done():
			return nil
		}
	}
	e := &entry{done: make(chan struct{})}
	o.entries[id] = e
	o.mu.Unlock()

	e.plugin = o.runLoad(ctx, id)

	// Publish to the registry before releasing coalesced callers so a
	// caller returning from Load can always look its plugin up.
	if e.plugin != nil {
		o.registry.Add(e.plugin)
		pluginsLoaded.Inc()
	} else {
		pluginsFailed.Inc()
	}
	close(e.done)

	return e.plugin
}

// LoadAll refreshes the catalogue and loads every descriptor in it,
// different plugins concurrently. Failures are logged and skipped; the
// survivors are what LoadAll is for.
func (o *Orchestrator) LoadAll(ctx context.Context) []*LoadedPlugin {
	ids := o.refreshCatalogue(ctx)

	var wg sync.WaitGroup
	for _, id := range ids {
		if !o.allowed(id) {
			o.logger.Info("plugin not in allowlist, skipping", "plugin", id)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Load(ctx, id)
		}()
	}
	wg.Wait()

	return o.registry.Plugins()
}

// allowed reports whether an id passes the allowlist. An empty allowlist
// admits everything.
func (o *Orchestrator) allowed(id string) bool {
	if len(o.allow) == 0 {
		return true
	}
	for _, g := range o.allow {
		if g.Match(id) {
			return true
		}
	}
	return false
}

// refreshCatalogue fetches the manifest and replaces the descriptor
// snapshot, returning plugin ids in catalogue order.
func (o *Orchestrator) refreshCatalogue(ctx context.Context) []string {
	descriptors := o.source.Fetch(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.catalogue = make(map[string]manifest.PluginDescriptor, len(descriptors))
	o.order = o.order[:0]
	for _, d := range descriptors {
		o.catalogue[d.ID] = d
		o.order = append(o.order, d.ID)
	}
	return append([]string(nil), o.order...)
}

// descriptor looks up a descriptor, refreshing the catalogue once on a
// miss so an explicit Load(id) works before any LoadAll.
func (o *Orchestrator) descriptor(ctx context.Context, id string) (manifest.PluginDescriptor, bool) {
	o.mu.Lock()
	d, ok := o.catalogue[id]
	o.mu.Unlock()
	if ok {
		return d, true
	}

	o.refreshCatalogue(ctx)

	o.mu.Lock()
	d, ok = o.catalogue[id]
	o.mu.Unlock()
	return d, ok
}

// runLoad is one plugin's whole load: descriptor lookup, then the
// bundle/scope/module pipeline under the retry policy.
func (o *Orchestrator) runLoad(ctx context.Context, id string) *LoadedPlugin {
	loadID := NewLoadID()
	ctx = logging.WithLoadID(ctx, loadID.String())
	logger := o.logger.With("plugin", id, "load_id", loadID.String())

	desc, ok := o.descriptor(ctx, id)
	if !ok {
		logger.Error("plugin not present in manifest")
		return nil
	}

	if o.hostVersion != "" {
		if compatible, err := desc.CompatibleWithHost(o.hostVersion); err != nil {
			errutil.LogWarn(logger, "host range check inconclusive", err)
		} else if !compatible {
			logger.Warn("plugin host range does not admit this host, loading anyway",
				"hostRange", desc.HostRange)
		}
	}

	var plugin *LoadedPlugin
	backoff := retry.WithMaxRetries(o.attempts-1, retry.NewConstant(o.delay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		p, err := o.attempt(ctx, &desc, loadID)
		if err != nil {
			return err
		}
		plugin = p
		return nil
	})
	if err != nil {
		errutil.LogError(logger, "plugin load failed", err)
		return nil
	}

	logger.Info("plugin loaded", "modules", len(plugin.Modules))
	return plugin
}

// attempt runs the load pipeline once. Bundle and scope failures are
// marked retryable; deterministic outcomes are not.
func (o *Orchestrator) attempt(ctx context.Context, desc *manifest.PluginDescriptor, loadID ulid.ULID) (*LoadedPlugin, error) {
	// Sharing must be negotiated before any dependent bundle executes.
	o.sharer.EnsureSharing()

	if err := o.loader.Load(ctx, desc); err != nil {
		loadRetries.Inc()
		return nil, retry.RetryableError(err)
	}

	container, err := o.resolver.ResolveScope(desc.ScopeName, desc.ID)
	if err != nil {
		loadRetries.Inc()
		return nil, retry.RetryableError(err)
	}

	if err := container.Init(ctx); err != nil {
		return nil, oops.In("registry").Code("BUNDLE_LOAD_FAILURE").
			With("plugin", desc.ID).Hint("scope init failed").Wrap(err)
	}

	// An empty declaration is deterministic: retrying cannot conjure
	// modules the descriptor never named.
	if len(desc.DeclaredModules) == 0 {
		return nil, oops.In("registry").Code("NO_MODULES_LOADED").
			With("plugin", desc.ID).
			New("descriptor declares no modules")
	}

	modules := make([]*LoadedModule, 0, len(desc.DeclaredModules))
	for i := range desc.DeclaredModules {
		md := &desc.DeclaredModules[i]
		resolved := o.resolver.ResolveModule(ctx, container, md, desc.ID)
		if resolved.Placeholder {
			placeholderModules.Inc()
		}
		modules = append(modules, newLoadedModule(desc.ID, md, resolved.Component, resolved.Strategy, resolved.Placeholder))
	}

	return &LoadedPlugin{
		ID:         desc.ID,
		LoadID:     loadID,
		Descriptor: *desc,
		Modules:    modules,
		LoadedAt:   time.Now(),
	}, nil
}
