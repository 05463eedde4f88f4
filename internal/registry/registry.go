// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

package registry

import (
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// Registry is the queryable record of loaded plugins and their modules.
// All reads are synchronous over in-memory state; the orchestrator is the
// only writer.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]*LoadedPlugin
	order   []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		plugins: make(map[string]*LoadedPlugin),
	}
}

// Add records a loaded plugin. Load order is preserved for Modules().
// The orchestrator is the normal writer; Add is exported for consumers
// that assemble registries by hand.
func (r *Registry) Add(p *LoadedPlugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plugins[p.ID]; !ok {
		r.order = append(r.order, p.ID)
	}
	r.plugins[p.ID] = p
}

// Plugin returns the loaded plugin with the given id.
func (r *Registry) Plugin(id string) (*LoadedPlugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[id]
	return p, ok
}

// Plugins returns all loaded plugins in load order.
func (r *Registry) Plugins() []*LoadedPlugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*LoadedPlugin, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.plugins[id])
	}
	return out
}

// Module returns one module of one plugin, by module id or name.
func (r *Registry) Module(pluginID, idOrName string) (*LoadedModule, bool) {
	p, ok := r.Plugin(pluginID)
	if !ok {
		return nil, false
	}
	return p.Module(idOrName)
}

// FindModule searches all plugins for a module with the given id or name.
// First match in load order wins.
func (r *Registry) FindModule(idOrName string) (*LoadedModule, bool) {
	for _, p := range r.Plugins() {
		if m, ok := p.Module(idOrName); ok {
			return m, true
		}
	}
	return nil, false
}

// Modules returns every loaded module, plugins in load order and modules
// in declaration order within each plugin.
func (r *Registry) Modules() []*LoadedModule {
	var out []*LoadedModule
	for _, p := range r.Plugins() {
		out = append(out, p.Modules...)
	}
	return out
}

// FilterModules returns the modules whose metadata matches every entry of
// the filter. String and int fields match on equality; "tags" matches
// when the module's tag set overlaps any of the wanted tags.
func (r *Registry) FilterModules(filter map[string]any) []*LoadedModule {
	var out []*LoadedModule
	for _, m := range r.Modules() {
		if moduleMatches(m, filter) {
			out = append(out, m)
		}
	}
	return out
}

// FindModulesGlob returns the modules whose name matches the glob
// pattern.
func (r *Registry) FindModulesGlob(pattern string) ([]*LoadedModule, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, oops.In("registry").With("pattern", pattern).
			Hint("invalid glob pattern").Wrap(err)
	}

	var out []*LoadedModule
	for _, m := range r.Modules() {
		if g.Match(m.Name) {
			out = append(out, m)
		}
	}
	return out, nil
}

func moduleMatches(m *LoadedModule, filter map[string]any) bool {
	for key, want := range filter {
		if !fieldMatches(m, key, want) {
			return false
		}
	}
	return true
}

func fieldMatches(m *LoadedModule, key string, want any) bool {
	switch key {
	case "id":
		return m.ID == want
	case "name":
		return m.Name == want
	case "displayName":
		return m.DisplayName == want
	case "category":
		return m.Category == want
	case "icon":
		return m.Icon == want
	case "priority":
		return m.Priority == want
	case "placeholder":
		return m.Placeholder == want
	case "tags":
		return tagsOverlap(m.Tags, want)
	default:
		return false
	}
}

// tagsOverlap implements any-overlap set semantics: a module matches when
// it carries at least one of the wanted tags.
func tagsOverlap(have []string, want any) bool {
	var wanted []string
	switch w := want.(type) {
	case string:
		wanted = []string{w}
	case []string:
		wanted = w
	default:
		return false
	}

	for _, w := range wanted {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}
