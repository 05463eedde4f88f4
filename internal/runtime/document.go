// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

package runtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/helioshell/helioshell/internal/resolve"
)

// Global names bundles and host agree on.
const (
	// shareScopesGlobal is the negotiation table holding named
	// shared-dependency scopes. Installed as a polyfill when the
	// environment does not already provide it.
	shareScopesGlobal = "__shell_share_scopes"

	// defaultShareScope is the scope name host and plugins populate.
	defaultShareScope = "default"
)

// Document is the process-wide shared namespace plugin bundles execute
// into. It plays the role a browser document plays for script injection:
// bundles run inside one long-lived Lua state, register global tables,
// and read libraries from a negotiated shared scope.
//
// A Lua state is not goroutine-safe, so every interaction with the state
// is serialized behind mu. Host functions (shell.*) run while a bundle
// executes, i.e. with mu already held; they must only touch locked
// internals and never re-acquire the mutex.
type Document struct {
	mu       sync.Mutex
	state    *lua.LState
	executed map[string]bool
	ready    []*lua.LFunction
	shared   *lua.LTable
	logger   *slog.Logger
}

// DocumentOption configures the Document.
type DocumentOption func(*Document)

// WithLogger sets the logger for document diagnostics.
func WithLogger(l *slog.Logger) DocumentOption {
	return func(d *Document) {
		d.logger = l
	}
}

// NewDocument creates the shared document state with sandboxed libraries
// and the shell.* host namespace registered.
func NewDocument(ctx context.Context, opts ...DocumentOption) (*Document, error) {
	d := &Document{
		executed: make(map[string]bool),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}

	state, err := NewStateFactory().NewState(ctx)
	if err != nil {
		return nil, oops.In("runtime").Hint("failed to create document state").Wrap(err)
	}
	d.state = state
	d.registerHostFunctions()

	return d, nil
}

// Close releases the underlying Lua state. The document must not be used
// afterwards. Scope containers obtained from it die with it, which
// mirrors their document-bound lifetime.
func (d *Document) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.Close()
}

// EnsureSharing establishes the shared-dependency scope. Idempotent and
// safe to call concurrently; if the negotiation table is absent a
// polyfill is installed rather than failing. There is no error path: a
// missing primitive means "not yet present", not fatal.
func (d *Document) EnsureSharing() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureSharingLocked()
}

// ensureSharingLocked creates the negotiation table and default scope if
// needed and caches the scope table. Callers must hold mu.
func (d *Document) ensureSharingLocked() *lua.LTable {
	if d.shared != nil {
		return d.shared
	}

	negotiation, ok := d.state.GetGlobal(shareScopesGlobal).(*lua.LTable)
	if !ok {
		negotiation = d.state.NewTable()
		d.state.SetGlobal(shareScopesGlobal, negotiation)
		d.logger.Debug("installed share-scope polyfill", "global", shareScopesGlobal)
	}

	scope, ok := negotiation.RawGetString(defaultShareScope).(*lua.LTable)
	if !ok {
		scope = d.state.NewTable()
		negotiation.RawSetString(defaultShareScope, scope)
	}

	d.shared = scope
	return scope
}

// Provide adds a host library to the shared scope under name. The scope
// is additive and write-once per entry: providing a name that is already
// present is a no-op, so host and plugins can both populate it without
// coordination.
func (d *Document) Provide(name string, build func(*lua.LState) lua.LValue) {
	d.mu.Lock()
	defer d.mu.Unlock()

	scope := d.ensureSharingLocked()
	if scope.RawGetString(name) != lua.LNil {
		return
	}
	scope.RawSetString(name, build(d.state))
}

// Executed reports whether the bundle at url has already run.
func (d *Document) Executed(url string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.executed[url]
}

// ExecuteOnce compiles and runs a bundle in the shared state, exactly
// once per URL. Re-executing an already-run URL is a no-op success, the
// way an already-present script element resolves immediately.
//
// A compile or runtime failure does not mark the URL as executed, so a
// retry may re-attempt it. Success is permanent: a script's side effects
// cannot be undone.
func (d *Document) ExecuteOnce(ctx context.Context, url, source string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.executed[url] {
		return nil
	}

	fn, err := d.state.LoadString(source)
	if err != nil {
		return oops.In("runtime").With("url", url).
			Hint("bundle failed to compile").Wrap(err)
	}

	d.state.SetContext(ctx)
	if err := d.state.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}); err != nil {
		return oops.In("runtime").With("url", url).
			Hint("bundle execution failed").Wrap(err)
	}

	d.executed[url] = true
	return nil
}

// Settle drains the ready-hook queue, giving a just-executed bundle's
// deferred registration side effects a chance to finish before scope
// resolution proceeds. Hook failures are logged, never propagated: a
// broken hook must not fail a load whose bundle already executed.
func (d *Document) Settle(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state.SetContext(ctx)
	// Hooks may queue further hooks; keep draining until quiescent.
	for len(d.ready) > 0 {
		hooks := d.ready
		d.ready = nil
		for _, fn := range hooks {
			if err := d.state.CallByParam(lua.P{
				Fn:      fn,
				NRet:    0,
				Protect: true,
			}); err != nil {
				d.logger.Warn("ready hook failed", "error", err)
			}
		}
	}
}

// Lookup returns the container registered under the given global name.
// Any global table qualifies; whether it behaves like a scope container
// is discovered lazily when init/get are used.
func (d *Document) Lookup(name string) (resolve.Container, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	table, ok := d.state.GetGlobal(name).(*lua.LTable)
	if !ok {
		return nil, false
	}
	return &Scope{doc: d, table: table, globalName: name}, true
}

// Keys returns the string-keyed global names currently registered, for
// near-miss diagnostics when scope resolution fails.
func (d *Document) Keys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var keys []string
	d.state.G.Global.ForEach(func(k, _ lua.LValue) {
		if s, ok := k.(lua.LString); ok {
			keys = append(keys, string(s))
		}
	})
	return keys
}

// Compile-time interface check.
var _ resolve.Locator = (*Document)(nil)
