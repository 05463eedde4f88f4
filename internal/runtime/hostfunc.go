// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

package runtime

import (
	lua "github.com/yuin/gopher-lua"
)

// hostNamespace is the global table bundles use to talk to the host.
const hostNamespace = "shell"

// registerHostFunctions installs the shell.* namespace. Called once at
// document construction, before any bundle runs.
//
// All of these execute while a bundle chunk is running, i.e. with the
// document mutex already held. They must only use locked internals.
func (d *Document) registerHostFunctions() {
	ns := d.state.NewTable()

	d.state.SetField(ns, "log", d.state.NewFunction(d.hostLog))
	d.state.SetField(ns, "ready", d.state.NewFunction(d.hostReady))
	d.state.SetField(ns, "shared", d.state.NewFunction(d.hostShared))

	d.state.SetGlobal(hostNamespace, ns)
}

// hostLog implements shell.log(level, msg).
func (d *Document) hostLog(L *lua.LState) int {
	level := L.CheckString(1)
	msg := L.CheckString(2)

	switch level {
	case "debug":
		d.logger.Debug(msg, "source", "bundle")
	case "warn":
		d.logger.Warn(msg, "source", "bundle")
	case "error":
		d.logger.Error(msg, "source", "bundle")
	default:
		d.logger.Info(msg, "source", "bundle")
	}
	return 0
}

// hostReady implements shell.ready(fn): queues a deferred registration
// hook that runs after the bundle's chunk finishes, before the loader
// resolves the bundle's scope.
func (d *Document) hostReady(L *lua.LState) int {
	fn := L.CheckFunction(1)
	d.ready = append(d.ready, fn)
	return 0
}

// hostShared implements shell.shared(): returns the shared-dependency
// scope table, creating it if the host has not negotiated one yet.
func (d *Document) hostShared(L *lua.LState) int {
	L.Push(d.ensureSharingLocked())
	return 1
}
