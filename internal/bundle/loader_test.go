// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

package bundle_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helioshell/helioshell/internal/bundle"
	"github.com/helioshell/helioshell/internal/manifest"
	"github.com/helioshell/helioshell/pkg/errutil"
)

// fakeDocument records executions without a Lua state.
type fakeDocument struct {
	mu       sync.Mutex
	executed map[string]string
	settles  int
	execErr  error
	started  chan struct{}
	release  chan struct{}
}

func newFakeDocument() *fakeDocument {
	return &fakeDocument{executed: make(map[string]string)}
}

func (d *fakeDocument) Executed(url string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.executed[url]
	return ok
}

func (d *fakeDocument) ExecuteOnce(_ context.Context, url, source string) error {
	if d.started != nil {
		d.started <- struct{}{}
	}
	if d.release != nil {
		<-d.release
	}
	if d.execErr != nil {
		return d.execErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.executed[url] = source
	return nil
}

func (d *fakeDocument) Settle(context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settles++
}

func weatherDescriptor(location string) *manifest.PluginDescriptor {
	return &manifest.PluginDescriptor{
		ID:                  "weather-plugin",
		DatabaseID:          "db-weather",
		EntryBundleLocation: location,
		ScopeName:           "weatherPlugin",
	}
}

func TestLoad_FetchesExecutesSettles(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/public/plugins/db-weather/entry.lua", r.URL.Path)
		_, _ = w.Write([]byte(`weather_plugin = {}`))
	}))
	defer srv.Close()

	doc := newFakeDocument()
	loader := bundle.NewLoader(bundle.NewResolver(srv.URL), doc)

	err := loader.Load(context.Background(), weatherDescriptor("entry.lua"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), hits.Load())
	assert.True(t, doc.Executed(srv.URL+"/public/plugins/db-weather/entry.lua"))
	assert.Equal(t, 1, doc.settles)
}

func TestLoad_AlreadyExecutedSkipsFetch(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`weather_plugin = {}`))
	}))
	defer srv.Close()

	doc := newFakeDocument()
	loader := bundle.NewLoader(bundle.NewResolver(srv.URL), doc)
	desc := weatherDescriptor("entry.lua")

	require.NoError(t, loader.Load(context.Background(), desc))
	require.NoError(t, loader.Load(context.Background(), desc))

	assert.Equal(t, int64(1), hits.Load(), "second load must not refetch")
}

func TestLoad_ConcurrentSameURLFetchesOnce(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`weather_plugin = {}`))
	}))
	defer srv.Close()

	doc := newFakeDocument()
	doc.started = make(chan struct{}, 1)
	doc.release = make(chan struct{})

	loader := bundle.NewLoader(bundle.NewResolver(srv.URL), doc)
	desc := weatherDescriptor("entry.lua")

	errs := make(chan error, 2)
	go func() { errs <- loader.Load(context.Background(), desc) }()
	<-doc.started // first load is mid-execution

	go func() { errs <- loader.Load(context.Background(), desc) }()
	close(doc.release)

	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
	assert.Equal(t, int64(1), hits.Load(), "concurrent loads must share one fetch")
}

func TestLoad_HTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	doc := newFakeDocument()
	loader := bundle.NewLoader(bundle.NewResolver(srv.URL), doc)

	err := loader.Load(context.Background(), weatherDescriptor("entry.lua"))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "BUNDLE_LOAD_FAILURE")
	errutil.AssertErrorContext(t, err, "plugin", "weather-plugin")
}

func TestLoad_ExecutionFailureRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`broken (`))
	}))
	defer srv.Close()

	doc := newFakeDocument()
	doc.execErr = errors.New("compile failed")
	loader := bundle.NewLoader(bundle.NewResolver(srv.URL), doc)
	desc := weatherDescriptor("entry.lua")

	err := loader.Load(context.Background(), desc)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "BUNDLE_LOAD_FAILURE")

	// Same URL re-attempts once the bundle is fixed.
	doc.execErr = nil
	assert.NoError(t, loader.Load(context.Background(), desc))
}

func TestLoad_CacheFallbackWhenOriginDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`weather_plugin = {}`))
	}))

	cacheDir := t.TempDir()
	doc := newFakeDocument()
	resolver := bundle.NewResolver(srv.URL)
	loader := bundle.NewLoader(resolver, doc, bundle.WithCacheDir(cacheDir))
	desc := weatherDescriptor("entry.lua")

	require.NoError(t, loader.Load(context.Background(), desc))
	url := srv.URL + "/public/plugins/db-weather/entry.lua"
	require.True(t, doc.Executed(url))

	// Origin goes away; a fresh document loads from the cache.
	srv.Close()
	doc2 := newFakeDocument()
	loader2 := bundle.NewLoader(resolver, doc2, bundle.WithCacheDir(cacheDir))

	require.NoError(t, loader2.Load(context.Background(), desc))
	assert.True(t, doc2.Executed(url))
}

func TestLoad_OriginDownNoCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	doc := newFakeDocument()
	loader := bundle.NewLoader(bundle.NewResolver(srv.URL), doc)

	err := loader.Load(context.Background(), weatherDescriptor("entry.lua"))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "BUNDLE_LOAD_FAILURE")
}

func TestLoad_EmptyLocation(t *testing.T) {
	doc := newFakeDocument()
	loader := bundle.NewLoader(bundle.NewResolver("https://shell.example.com"), doc)

	err := loader.Load(context.Background(), weatherDescriptor(""))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "BUNDLE_LOAD_FAILURE")
}
