// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	lua "github.com/yuin/gopher-lua"

	"github.com/helioshell/helioshell/internal/api"
	"github.com/helioshell/helioshell/internal/bundle"
	"github.com/helioshell/helioshell/internal/manifest"
	"github.com/helioshell/helioshell/internal/registry"
	"github.com/helioshell/helioshell/internal/resolve"
	"github.com/helioshell/helioshell/internal/runtime"
)

const weatherBundleSource = `
weather_plugin = {
	init = function(shared)
		weather_ready = shared ~= nil
	end,
	get = function(key)
		if key == "Widget" then
			return function()
				return { default = "WIDGET_COMPONENT" }
			end
		end
		return nil
	end,
}
`

const clockBundleSource = `
shell.ready(function()
	clock_plugin = {
		get = function(key)
			if key == "Face" then
				return function()
					return { default = "CLOCK_FACE" }
				end
			end
			return nil
		end,
	}
end)
`

var _ = Describe("plugin loading", func() {
	var (
		manifestSrv *httptest.Server
		bundleSrv   *httptest.Server
		bundleHits  atomic.Int64
		doc         *runtime.Document
		orch        *registry.Orchestrator
		reg         *registry.Registry
	)

	catalogue := map[string]any{
		"weather-plugin": map[string]any{
			"entryBundleLocation": "weather.lua",
			"scopeName":           "weatherPlugin",
			"declaredModules": []map[string]any{
				{"name": "./Widget", "displayName": "Weather Widget", "category": "widgets", "tags": []string{"chart"}},
				{"name": "./Radar", "displayName": "Weather Radar", "category": "widgets"},
			},
		},
		"clock-plugin": map[string]any{
			"entryBundleLocation": "clock.lua",
			"scopeName":           "clockPlugin",
			"declaredModules": []map[string]any{
				{"name": "./Face", "displayName": "Clock Face", "category": "widgets"},
			},
		},
		"broken-plugin": map[string]any{
			"entryBundleLocation": "broken.lua",
			"scopeName":           "brokenPlugin",
			"declaredModules": []map[string]any{
				{"name": "./Panel"},
			},
		},
	}

	BeforeEach(func() {
		bundleHits.Store(0)

		manifestSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			Expect(json.NewEncoder(w).Encode(catalogue)).To(Succeed())
		}))

		bundleSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bundleHits.Add(1)
			switch r.URL.Path {
			case "/public/plugins/weather-plugin/weather.lua":
				_, _ = w.Write([]byte(weatherBundleSource))
			case "/public/plugins/clock-plugin/clock.lua":
				_, _ = w.Write([]byte(clockBundleSource))
			default:
				http.NotFound(w, r)
			}
		}))

		var err error
		doc, err = runtime.NewDocument(context.Background())
		Expect(err).NotTo(HaveOccurred())

		reg = registry.New()
		orch = registry.NewOrchestrator(
			manifest.NewFetcher(manifestSrv.URL),
			doc,
			bundle.NewLoader(bundle.NewResolver(bundleSrv.URL), doc),
			resolve.NewResolver(doc),
			reg,
			registry.WithRetry(2, 10*time.Millisecond),
		)
	})

	AfterEach(func() {
		doc.Close()
		bundleSrv.Close()
		manifestSrv.Close()
	})

	It("loads every reachable plugin and isolates the broken one", func() {
		loaded := orch.LoadAll(context.Background())

		ids := make([]string, 0, len(loaded))
		for _, p := range loaded {
			ids = append(ids, p.ID)
		}
		Expect(ids).To(ConsistOf("weather-plugin", "clock-plugin"))

		_, ok := reg.Plugin("broken-plugin")
		Expect(ok).To(BeFalse())
	})

	It("resolves modules across naming conventions and deferred registration", func() {
		orch.LoadAll(context.Background())

		widget, ok := reg.Module("weather-plugin", "./Widget")
		Expect(ok).To(BeTrue())
		Expect(widget.Placeholder).To(BeFalse())
		Expect(widget.Component).To(Equal(lua.LValue(lua.LString("WIDGET_COMPONENT"))))

		// clock_plugin registers from a ready hook, not at top level.
		face, ok := reg.Module("clock-plugin", "./Face")
		Expect(ok).To(BeTrue())
		Expect(face.Component).To(Equal(lua.LValue(lua.LString("CLOCK_FACE"))))
	})

	It("degrades undeclared factories to placeholders with stable metadata", func() {
		orch.LoadAll(context.Background())

		radar, ok := reg.Module("weather-plugin", "./Radar")
		Expect(ok).To(BeTrue())
		Expect(radar.Placeholder).To(BeTrue())
		Expect(radar.DisplayName).To(Equal("Weather Radar"))
	})

	It("does not refetch bundles on repeated loads", func() {
		orch.LoadAll(context.Background())
		hits := bundleHits.Load()

		Expect(orch.Load(context.Background(), "weather-plugin")).NotTo(BeNil())
		Expect(bundleHits.Load()).To(Equal(hits))
	})

	It("serves the registry over the query API", func() {
		orch.LoadAll(context.Background())

		srv := api.NewServer("127.0.0.1:0", reg)
		_, err := srv.Start()
		Expect(err).NotTo(HaveOccurred())
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Stop(ctx)
		}()

		resp, err := http.Get("http://" + srv.Addr() + "/v1/modules?q=" + "category%20%3D%3D%20%22widgets%22")
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = resp.Body.Close() }()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var modules []map[string]any
		Expect(json.NewDecoder(resp.Body).Decode(&modules)).To(Succeed())
		Expect(len(modules)).To(Equal(3))
	})
})
