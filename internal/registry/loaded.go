// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

// Package registry tracks which plugins have been loaded into the shared
// document and answers queries about their modules.
package registry

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	lua "github.com/yuin/gopher-lua"

	"github.com/helioshell/helioshell/internal/manifest"
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// NewLoadID generates the ULID that identifies one load session in logs
// and diagnostics.
func NewLoadID() ulid.ULID {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
}

// LoadedModule is one resolved module of a loaded plugin. Metadata always
// comes from the descriptor, never from the runtime value, so the module
// presents identically whether Component is real or a placeholder.
type LoadedModule struct {
	ID          string
	Name        string
	DisplayName string
	Description string
	Icon        string
	Category    string
	Tags        []string
	Priority    int
	Layout      map[string]any
	Props       map[string]any
	Config      map[string]any

	// Component is the runtime value the rendering layer consumes. It is
	// always populated: genuinely resolved or a placeholder.
	Component lua.LValue

	// Placeholder marks a module that degraded during resolution.
	Placeholder bool

	// Strategy records which resolution path produced Component.
	Strategy string
}

// LoadedPlugin is the immutable record of one successfully loaded plugin.
type LoadedPlugin struct {
	ID         string
	LoadID     ulid.ULID
	Descriptor manifest.PluginDescriptor
	Modules    []*LoadedModule
	LoadedAt   time.Time
}

// Module returns the loaded module with the given id or name.
func (p *LoadedPlugin) Module(idOrName string) (*LoadedModule, bool) {
	for _, m := range p.Modules {
		if m.ID == idOrName || m.Name == idOrName {
			return m, true
		}
	}
	return nil, false
}

// newLoadedModule copies descriptor metadata next to the resolved
// component.
func newLoadedModule(pluginID string, desc *manifest.ModuleDescriptor, component lua.LValue, strategy string, placeholder bool) *LoadedModule {
	return &LoadedModule{
		ID:          pluginID + "/" + desc.Name,
		Name:        desc.Name,
		DisplayName: desc.DisplayName,
		Description: desc.Description,
		Icon:        desc.Icon,
		Category:    desc.Category,
		Tags:        desc.Tags,
		Priority:    desc.Priority,
		Layout:      desc.Layout,
		Props:       desc.Props,
		Config:      desc.Config,
		Component:   component,
		Placeholder: placeholder,
		Strategy:    strategy,
	}
}
