// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

package resolve

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/helioshell/helioshell/internal/manifest"
)

// Resolution strategies, in the order they are attempted.
const (
	StrategyContainer   = "container"
	StrategyProperty    = "property"
	StrategyGlobal      = "global"
	StrategyPlaceholder = "placeholder"
)

// Resolved is the outcome of resolving one declared module. Component is
// always populated: genuinely resolved or a placeholder, never nil.
type Resolved struct {
	Component   lua.LValue
	Strategy    string
	Placeholder bool
	Diagnostic  string
}

// ResolveModule resolves one declared module out of a container.
//
// Resolution order, first success wins:
//  1. the container's get, under the declared key and its "./" variants;
//  2. a directly callable property on the container;
//  3. a global entry keyed by the normalized plugin id, exposing the
//     module by name or as a default export;
//  4. a synthesized placeholder component, so one unresolvable module
//     degrades instead of failing the plugin.
//
// Whatever path succeeds, the factory is invoked exactly once and the
// result's default export (when present) becomes the component. Module
// metadata is never taken from the runtime value; callers copy it from
// the descriptor so presentation stays stable under degradation.
func (r *Resolver) ResolveModule(ctx context.Context, container Container, desc *manifest.ModuleDescriptor, pluginID string) Resolved {
	name := desc.Name
	stripped := StripModulePrefix(name)

	// Strategy 1: ask the container.
	for _, key := range ModuleKeyCandidates(name) {
		factory, err := container.Get(ctx, key)
		if err != nil {
			r.logger.Debug("container get miss",
				"plugin", pluginID, "module", name, "key", key, "error", err)
			continue
		}
		if resolved, ok := r.invoke(ctx, factory, StrategyContainer, pluginID, name); ok {
			return resolved
		}
	}

	// Strategy 2: a directly callable property.
	for _, key := range []string{name, stripped} {
		if factory, ok := container.CallableProperty(key); ok {
			if resolved, ok := r.invoke(ctx, factory, StrategyProperty, pluginID, name); ok {
				return resolved
			}
		}
	}

	// Strategy 3: the global namespace, keyed by normalized plugin id.
	if resolved, ok := r.resolveFromGlobal(ctx, pluginID, name, stripped); ok {
		return resolved
	}

	// Strategy 4: placeholder.
	diagnostic := fmt.Sprintf("module %q of plugin %q could not be resolved", name, pluginID)
	r.logger.Warn("module resolution degraded to placeholder",
		"plugin", pluginID,
		"module", name,
		"code", "MODULE_RESOLUTION_DEGRADED")

	return Resolved{
		Component:   lua.LString(diagnostic),
		Strategy:    StrategyPlaceholder,
		Placeholder: true,
		Diagnostic:  diagnostic,
	}
}

// invoke runs a factory once and unwraps its default export. A factory
// that fails or yields nothing is a miss, not a fatal error; the caller
// moves on to the next strategy.
func (r *Resolver) invoke(ctx context.Context, factory Factory, strategy, pluginID, name string) (Resolved, bool) {
	exports, err := factory.Invoke(ctx)
	if err != nil {
		r.logger.Warn("module factory failed",
			"plugin", pluginID, "module", name, "strategy", strategy, "error", err)
		return Resolved{}, false
	}
	if exports == nil || exports == lua.LNil {
		return Resolved{}, false
	}

	return Resolved{
		Component: DefaultExport(exports),
		Strategy:  strategy,
	}, true
}

// resolveFromGlobal tries the conventional escape hatch of bundles that
// skip the container: a global table keyed by the normalized plugin id.
func (r *Resolver) resolveFromGlobal(ctx context.Context, pluginID, name, stripped string) (Resolved, bool) {
	entry, ok := r.locator.Lookup(NormalizePluginID(pluginID))
	if !ok {
		return Resolved{}, false
	}

	for _, key := range []string{stripped, name, "default"} {
		if factory, ok := entry.CallableProperty(key); ok {
			if resolved, ok := r.invoke(ctx, factory, StrategyGlobal, pluginID, name); ok {
				return resolved, true
			}
			continue
		}
		if v, ok := entry.Property(key); ok {
			return Resolved{
				Component: DefaultExport(v),
				Strategy:  StrategyGlobal,
			}, true
		}
	}

	return Resolved{}, false
}
