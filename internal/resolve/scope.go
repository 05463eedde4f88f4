// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

package resolve

import (
	"log/slog"
	"strings"

	"github.com/samber/oops"
)

// maxNearMisses caps the near-miss list attached to a ScopeNotFound
// error so one failure cannot flood the logs with the whole namespace.
const maxNearMisses = 8

// Resolver locates scope containers and resolves modules from them.
type Resolver struct {
	locator Locator
	logger  *slog.Logger
}

// ResolverOption configures the Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the logger for resolution diagnostics.
func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = l
	}
}

// NewResolver creates a resolver over the given locator.
func NewResolver(locator Locator, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		locator: locator,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveScope finds the container the bundle registered for the
// declared scope name, trying each naming-convention variant in order.
//
// There is no placeholder fallback at this level: a bundle that executed
// but registered nothing findable aborts the whole plugin load. The
// returned error carries every attempted variant plus a capped list of
// global keys that resemble the plugin id or scope name, to aid operator
// diagnosis.
func (r *Resolver) ResolveScope(scopeName, pluginID string) (Container, error) {
	candidates := ScopeNameCandidates(scopeName)

	for _, candidate := range candidates {
		if container, ok := r.locator.Lookup(candidate); ok {
			if candidate != scopeName {
				r.logger.Warn("scope resolved under variant name",
					"plugin", pluginID,
					"declared", scopeName,
					"resolved", candidate)
			}
			return container, nil
		}
	}

	return nil, oops.In("resolve").Code("SCOPE_NOT_FOUND").
		With("plugin", pluginID).
		With("scope", scopeName).
		With("attempted", candidates).
		With("near_misses", r.nearMisses(scopeName, pluginID)).
		New("bundle did not register a scope container under any expected name")
}

// nearMisses returns global keys that resemble the plugin id or scope
// name once separators and case are squashed, capped at maxNearMisses.
func (r *Resolver) nearMisses(scopeName, pluginID string) []string {
	targets := []string{squash(scopeName), squash(pluginID)}

	var misses []string
	for _, key := range r.locator.Keys() {
		if len(misses) >= maxNearMisses {
			break
		}
		sk := squash(key)
		if sk == "" {
			continue
		}
		for _, target := range targets {
			if target == "" {
				continue
			}
			if strings.Contains(sk, target) || strings.Contains(target, sk) {
				misses = append(misses, key)
				break
			}
		}
	}
	return misses
}

// squash lowercases an identifier and removes separator characters so
// naming-convention variants of the same words compare equal.
func squash(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r == '-' || r == '_' || r == ' ' || r == '.' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
