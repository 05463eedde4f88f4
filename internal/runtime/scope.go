// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

package runtime

import (
	"context"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/helioshell/helioshell/internal/resolve"
)

// Scope is the capability view over a table a bundle registered in the
// document's global namespace. The table itself is foreign and untyped;
// everything crossing it is validated before use.
type Scope struct {
	doc        *Document
	table      *lua.LTable
	globalName string
}

// Compile-time interface checks.
var (
	_ resolve.Container = (*Scope)(nil)
	_ resolve.Factory   = (*Factory)(nil)
)

// GlobalName returns the global name the container was found under,
// which may differ in convention from the declared scope name.
func (s *Scope) GlobalName() string {
	return s.globalName
}

// Init calls the container's init with the shared-dependency scope.
// A container without a callable init is tolerated: the bundle may have
// wired its dependencies at execution time instead.
func (s *Scope) Init(ctx context.Context) error {
	s.doc.mu.Lock()
	defer s.doc.mu.Unlock()

	initFn, ok := s.table.RawGetString("init").(*lua.LFunction)
	if !ok {
		s.doc.logger.Debug("container has no init", "scope", s.globalName)
		return nil
	}

	shared := s.doc.ensureSharingLocked()
	s.doc.state.SetContext(ctx)
	if err := s.doc.state.CallByParam(lua.P{
		Fn:      initFn,
		NRet:    0,
		Protect: true,
	}, shared); err != nil {
		return oops.In("runtime").With("scope", s.globalName).
			Hint("container init failed").Wrap(err)
	}
	return nil
}

// Get asks the container for the module factory registered under key.
func (s *Scope) Get(ctx context.Context, key string) (resolve.Factory, error) {
	s.doc.mu.Lock()
	defer s.doc.mu.Unlock()

	getFn, ok := s.table.RawGetString("get").(*lua.LFunction)
	if !ok {
		return nil, oops.In("runtime").With("scope", s.globalName).
			New("container has no get")
	}

	s.doc.state.SetContext(ctx)
	if err := s.doc.state.CallByParam(lua.P{
		Fn:      getFn,
		NRet:    1,
		Protect: true,
	}, lua.LString(key)); err != nil {
		return nil, oops.In("runtime").With("scope", s.globalName).
			With("key", key).Hint("container get failed").Wrap(err)
	}

	ret := s.doc.state.Get(-1)
	s.doc.state.Pop(1)

	factoryFn, ok := ret.(*lua.LFunction)
	if !ok {
		return nil, oops.In("runtime").With("scope", s.globalName).
			With("key", key).With("got", ret.Type().String()).
			New("container did not return a callable factory")
	}

	return &Factory{doc: s.doc, fn: factoryFn}, nil
}

// Property returns the raw value stored directly on the container table.
func (s *Scope) Property(key string) (lua.LValue, bool) {
	s.doc.mu.Lock()
	defer s.doc.mu.Unlock()

	v := s.table.RawGetString(key)
	if v == lua.LNil {
		return nil, false
	}
	return v, true
}

// CallableProperty returns a factory for a directly callable property,
// if the container exposes one under key.
func (s *Scope) CallableProperty(key string) (resolve.Factory, bool) {
	s.doc.mu.Lock()
	defer s.doc.mu.Unlock()

	fn, ok := s.table.RawGetString(key).(*lua.LFunction)
	if !ok {
		return nil, false
	}
	return &Factory{doc: s.doc, fn: fn}, true
}

// Factory is an invokable module factory obtained from a container.
type Factory struct {
	doc *Document
	fn  *lua.LFunction
}

// Invoke calls the factory and returns the module exports value.
// Callers invoke a factory at most once per module.
func (f *Factory) Invoke(ctx context.Context) (lua.LValue, error) {
	f.doc.mu.Lock()
	defer f.doc.mu.Unlock()

	f.doc.state.SetContext(ctx)
	if err := f.doc.state.CallByParam(lua.P{
		Fn:      f.fn,
		NRet:    1,
		Protect: true,
	}); err != nil {
		return nil, oops.In("runtime").Hint("module factory failed").Wrap(err)
	}

	ret := f.doc.state.Get(-1)
	f.doc.state.Pop(1)
	return ret, nil
}
