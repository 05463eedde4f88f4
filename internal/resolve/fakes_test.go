// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

package resolve_test

import (
	"context"
	"errors"
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/helioshell/helioshell/internal/resolve"
)

// fakeFactory is an in-memory Factory counting its invocations.
type fakeFactory struct {
	exports lua.LValue
	err     error
	calls   int
}

func (f *fakeFactory) Invoke(_ context.Context) (lua.LValue, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.exports, nil
}

// fakeContainer is an in-memory Container backed by plain maps.
type fakeContainer struct {
	name      string
	factories map[string]*fakeFactory
	props     map[string]lua.LValue
	callable  map[string]*fakeFactory
	initErr   error
	initCalls int
}

func (c *fakeContainer) GlobalName() string { return c.name }

func (c *fakeContainer) Init(_ context.Context) error {
	c.initCalls++
	return c.initErr
}

func (c *fakeContainer) Get(_ context.Context, key string) (resolve.Factory, error) {
	if f, ok := c.factories[key]; ok {
		return f, nil
	}
	return nil, errors.New("no factory for " + key)
}

func (c *fakeContainer) Property(key string) (lua.LValue, bool) {
	v, ok := c.props[key]
	return v, ok
}

func (c *fakeContainer) CallableProperty(key string) (resolve.Factory, bool) {
	f, ok := c.callable[key]
	if !ok {
		return nil, false
	}
	return f, true
}

// fakeLocator is an in-memory global namespace.
type fakeLocator struct {
	containers map[string]resolve.Container
}

func (l *fakeLocator) Lookup(name string) (resolve.Container, bool) {
	c, ok := l.containers[name]
	return c, ok
}

func (l *fakeLocator) Keys() []string {
	keys := make([]string, 0, len(l.containers))
	for k := range l.containers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
