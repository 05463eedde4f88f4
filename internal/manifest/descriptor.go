// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

// Package manifest defines plugin descriptors and retrieves the plugin
// catalogue from the provisioning API.
package manifest

import (
	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"
)

// PluginDescriptor describes one remotely-loadable plugin as delivered by
// the provisioning API. Descriptors are read-only input: they are never
// mutated after being received.
type PluginDescriptor struct {
	// ID is the plugin identity. Backfilled from the catalogue key when
	// the descriptor body omits it.
	ID string `json:"id"`

	// DatabaseID, when present, supersedes ID for bundle addressing.
	// It exists so multi-tenant deployments can re-home a plugin's
	// bundles without re-issuing its identity.
	DatabaseID string `json:"databaseId,omitempty"`

	// EntryBundleLocation is the relative or absolute URL of the entry
	// bundle script.
	EntryBundleLocation string `json:"entryBundleLocation"`

	// ScopeName is the global namespace the executed bundle is expected
	// to register itself under. Bundles are not reliable about the
	// casing convention; see the resolve package.
	ScopeName string `json:"scopeName"`

	// HostRange is an optional semver constraint naming the host
	// versions this plugin was built against. Violations warn, never
	// reject.
	HostRange string `json:"hostRange,omitempty"`

	// DeclaredModules lists the modules the bundle claims to expose,
	// in presentation order.
	DeclaredModules []ModuleDescriptor `json:"declaredModules"`
}

// ModuleDescriptor describes one module a plugin declares. Immutable once
// received; resolved modules always copy their metadata from here, never
// from the runtime value, so presentation stays stable when resolution
// degrades.
type ModuleDescriptor struct {
	// Name is the factory key expected inside the scope container,
	// conventionally "./"-prefixed.
	Name string `json:"name"`

	DisplayName      string         `json:"displayName,omitempty"`
	Description      string         `json:"description,omitempty"`
	Icon             string         `json:"icon,omitempty"`
	Category         string         `json:"category,omitempty"`
	Tags             []string       `json:"tags,omitempty"`
	Priority         int            `json:"priority,omitempty"`
	RequiredServices []string       `json:"requiredServices,omitempty"`
	Layout           map[string]any `json:"layout,omitempty"`
	Props            map[string]any `json:"props,omitempty"`
	Config           map[string]any `json:"config,omitempty"`
}

// BundleKey returns the identity used for per-plugin bundle addressing:
// DatabaseID when present, otherwise ID.
func (d *PluginDescriptor) BundleKey() string {
	if d.DatabaseID != "" {
		return d.DatabaseID
	}
	return d.ID
}

// Validate checks the constraints a descriptor must satisfy to be loadable.
// A violation does not reject the rest of the catalogue; the fetcher warns
// and skips the entry.
func (d *PluginDescriptor) Validate() error {
	if d.ID == "" {
		return oops.In("manifest").Code("MANIFEST_UNAVAILABLE").
			New("descriptor has no id")
	}
	if d.EntryBundleLocation == "" {
		return oops.In("manifest").Code("MANIFEST_UNAVAILABLE").
			With("plugin", d.ID).
			New("descriptor has no entry bundle location")
	}
	if d.ScopeName == "" {
		return oops.In("manifest").Code("MANIFEST_UNAVAILABLE").
			With("plugin", d.ID).
			New("descriptor has no scope name")
	}
	return nil
}

// CompatibleWithHost reports whether the descriptor's HostRange admits the
// given host version. An empty range is compatible with everything. Parse
// failures of either side are returned so the caller can warn; they never
// make the plugin unloadable.
func (d *PluginDescriptor) CompatibleWithHost(hostVersion string) (bool, error) {
	if d.HostRange == "" {
		return true, nil
	}

	constraint, err := semver.NewConstraint(d.HostRange)
	if err != nil {
		return true, oops.In("manifest").With("plugin", d.ID).
			With("hostRange", d.HostRange).
			Hint("invalid host range constraint").Wrap(err)
	}

	v, err := semver.NewVersion(hostVersion)
	if err != nil {
		return true, oops.In("manifest").With("plugin", d.ID).
			With("hostVersion", hostVersion).
			Hint("invalid host version").Wrap(err)
	}

	return constraint.Check(v), nil
}

// Module returns the declared module with the given name, or nil.
func (d *PluginDescriptor) Module(name string) *ModuleDescriptor {
	for i := range d.DeclaredModules {
		if d.DeclaredModules[i].Name == name {
			return &d.DeclaredModules[i]
		}
	}
	return nil
}
