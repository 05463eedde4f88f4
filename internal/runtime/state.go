// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

// Package runtime hosts the process-wide shared document state that
// plugin bundles execute into, and the capabilities the rest of the
// loader uses to talk to what they register there.
package runtime

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// stdLibrary pairs a Lua standard library with its loader.
type stdLibrary struct {
	name string
	fn   lua.LGFunction
}

// documentLibraries returns the standard libraries a bundle may use
// inside the shared document: base, table, string, math. os, io, debug
// and package stay out — bundles share one namespace but get no reach
// into the filesystem or the process.
func documentLibraries() []stdLibrary {
	return []stdLibrary{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
}

// StateFactory builds the interpreter state backing a document.
type StateFactory struct {
	// libraries allows overriding the document libraries for testing.
	libraries []stdLibrary
}

// NewStateFactory creates a new state factory.
func NewStateFactory() *StateFactory {
	return &StateFactory{
		libraries: documentLibraries(),
	}
}

// fileLoaders lists base functions that read chunks from the
// filesystem. The only entry point for code into the document is a
// fetched bundle, so these are removed.
var fileLoaders = []string{"dofile", "loadfile", "loadstring", "load"}

// NewState creates a fresh interpreter state carrying only the
// document libraries, with the file-loading base functions removed.
func (f *StateFactory) NewState(_ context.Context) (*lua.LState, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})

	for _, lib := range f.libraries {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("failed to open library %s: %w", lib.name, err)
		}
	}

	for _, fn := range fileLoaders {
		L.SetGlobal(fn, lua.LNil)
	}

	return L, nil
}
