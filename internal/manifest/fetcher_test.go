// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

package manifest_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helioshell/helioshell/internal/manifest"
)

func catalogueServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_PreservesCatalogueOrder(t *testing.T) {
	// Keys deliberately out of lexical order; flattening must keep
	// document order, not map iteration order.
	body := `{
		"zulu-plugin": {"entryBundleLocation": "z.lua", "scopeName": "zulu"},
		"alpha-plugin": {"entryBundleLocation": "a.lua", "scopeName": "alpha"},
		"mike-plugin": {"entryBundleLocation": "m.lua", "scopeName": "mike"}
	}`
	srv := catalogueServer(t, http.StatusOK, body)

	f := manifest.NewFetcher(srv.URL)
	descriptors := f.Fetch(context.Background())

	require.Len(t, descriptors, 3)
	assert.Equal(t, "zulu-plugin", descriptors[0].ID)
	assert.Equal(t, "alpha-plugin", descriptors[1].ID)
	assert.Equal(t, "mike-plugin", descriptors[2].ID)
}

func TestFetch_BackfillsIDFromKey(t *testing.T) {
	body := `{"clock-plugin": {"entryBundleLocation": "clock.lua", "scopeName": "clock"}}`
	srv := catalogueServer(t, http.StatusOK, body)

	descriptors := manifest.NewFetcher(srv.URL).Fetch(context.Background())

	require.Len(t, descriptors, 1)
	assert.Equal(t, "clock-plugin", descriptors[0].ID)
}

func TestFetch_SkipsMalformedEntryKeepsRest(t *testing.T) {
	body := `{
		"broken": {"scopeName": "broken"},
		"good": {"entryBundleLocation": "good.lua", "scopeName": "good"}
	}`
	srv := catalogueServer(t, http.StatusOK, body)

	descriptors := manifest.NewFetcher(srv.URL).Fetch(context.Background())

	require.Len(t, descriptors, 1)
	assert.Equal(t, "good", descriptors[0].ID)
}

func TestFetch_NonOKStatusDegradesToEmpty(t *testing.T) {
	srv := catalogueServer(t, http.StatusInternalServerError, `{}`)

	descriptors := manifest.NewFetcher(srv.URL).Fetch(context.Background())

	assert.Empty(t, descriptors)
}

func TestFetch_TransportFailureDegradesToEmpty(t *testing.T) {
	srv := catalogueServer(t, http.StatusOK, `{}`)
	srv.Close()

	descriptors := manifest.NewFetcher(srv.URL).Fetch(context.Background())

	assert.Empty(t, descriptors)
}

func TestFetch_NonObjectBodyDegradesToEmpty(t *testing.T) {
	srv := catalogueServer(t, http.StatusOK, `["not", "an", "object"]`)

	descriptors := manifest.NewFetcher(srv.URL).Fetch(context.Background())

	assert.Empty(t, descriptors)
}

func TestFetch_TruncatedBodyDegradesToEmpty(t *testing.T) {
	srv := catalogueServer(t, http.StatusOK, `{"weather": {"entryBundleLocation":`)

	descriptors := manifest.NewFetcher(srv.URL).Fetch(context.Background())

	assert.Empty(t, descriptors)
}

func TestFetch_IncompatibleHostRangeStillIncluded(t *testing.T) {
	body := `{
		"old-plugin": {
			"entryBundleLocation": "old.lua",
			"scopeName": "old",
			"hostRange": ">=9.0.0"
		}
	}`
	srv := catalogueServer(t, http.StatusOK, body)

	f := manifest.NewFetcher(srv.URL, manifest.WithHostVersion("1.0.0"))
	descriptors := f.Fetch(context.Background())

	// Incompatibility warns; it does not reject the entry.
	require.Len(t, descriptors, 1)
	assert.Equal(t, "old-plugin", descriptors[0].ID)
}

func TestFetch_DeclaredModulesDecoded(t *testing.T) {
	body := `{
		"weather-plugin": {
			"entryBundleLocation": "remoteEntry.lua",
			"scopeName": "weatherPlugin",
			"declaredModules": [
				{"name": "./Widget", "category": "widgets", "tags": ["weather", "chart"], "priority": 5},
				{"name": "./Settings", "requiredServices": ["geo"]}
			]
		}
	}`
	srv := catalogueServer(t, http.StatusOK, body)

	descriptors := manifest.NewFetcher(srv.URL).Fetch(context.Background())

	require.Len(t, descriptors, 1)
	mods := descriptors[0].DeclaredModules
	require.Len(t, mods, 2)
	assert.Equal(t, "./Widget", mods[0].Name)
	assert.Equal(t, []string{"weather", "chart"}, mods[0].Tags)
	assert.Equal(t, 5, mods[0].Priority)
	assert.Equal(t, []string{"geo"}, mods[1].RequiredServices)
}
