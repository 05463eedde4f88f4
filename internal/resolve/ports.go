// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

// Package resolve locates scope containers in the shared global
// namespace and resolves module factories out of them, tolerating the
// naming-convention drift of independently built bundles.
//
// The package depends only on the Locator/Container/Factory capabilities
// below, never on the global namespace directly, so the heuristic name
// matching stays testable without any bundle machinery.
package resolve

import (
	"context"

	lua "github.com/yuin/gopher-lua"
)

// Locator finds containers registered in the global namespace.
type Locator interface {
	// Lookup returns the container bound to the given global name.
	Lookup(name string) (Container, bool)

	// Keys returns the currently bound global names, for near-miss
	// diagnostics.
	Keys() []string
}

// Container is the capability a bundle registers: a foreign, untyped
// object negotiated down to init/get plus raw property access.
type Container interface {
	// GlobalName is the name the container was actually found under.
	GlobalName() string

	// Init hands the shared-dependency scope to the container.
	Init(ctx context.Context) error

	// Get asks for the module factory registered under key.
	Get(ctx context.Context, key string) (Factory, error)

	// Property returns a raw value stored directly on the container.
	Property(key string) (lua.LValue, bool)

	// CallableProperty returns a factory for a directly callable
	// property, if one exists under key.
	CallableProperty(key string) (Factory, bool)
}

// Factory yields a module's exports when invoked.
type Factory interface {
	Invoke(ctx context.Context) (lua.LValue, error)
}

// DefaultExport unwraps the conventional default export: a table with a
// default field resolves to that field, anything else is the export
// itself.
func DefaultExport(v lua.LValue) lua.LValue {
	table, ok := v.(*lua.LTable)
	if !ok {
		return v
	}
	if def := table.RawGetString("default"); def != lua.LNil {
		return def
	}
	return v
}
