// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

// Package api serves read-only JSON queries over the plugin registry.
// Components never cross this boundary; responses carry descriptor
// metadata and degradation flags only.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/helioshell/helioshell/internal/observability"
	"github.com/helioshell/helioshell/internal/registry"
)

// Server exposes the registry query surface over HTTP.
type Server struct {
	addr       string
	registry   *registry.Registry
	metrics    *observability.Metrics
	logger     *slog.Logger
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithMetrics enables per-endpoint request counting.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates an API server over the given registry.
func NewServer(addr string, reg *registry.Registry, opts ...ServerOption) *Server {
	s := &Server{
		addr:     addr,
		registry: reg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins serving. The returned channel reports serve errors and
// closes on graceful shutdown, mirroring the observability server.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/plugins", s.handlePlugins)
	mux.HandleFunc("GET /v1/plugins/{id}", s.handlePlugin)
	mux.HandleFunc("GET /v1/plugins/{id}/modules/{name}", s.handlePluginModule)
	mux.HandleFunc("GET /v1/modules", s.handleModules)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_api_server").Wrap(err)
		}
	}

	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the address the server is listening on, or empty if not
// running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// pluginResponse is the wire form of a loaded plugin.
type pluginResponse struct {
	ID       string           `json:"id"`
	LoadID   string           `json:"loadId"`
	LoadedAt time.Time        `json:"loadedAt"`
	Modules  []moduleResponse `json:"modules"`
}

// moduleResponse is the wire form of a loaded module. Component stays
// inside the process.
type moduleResponse struct {
	ID          string         `json:"id"`
	Plugin      string         `json:"plugin,omitempty"`
	Name        string         `json:"name"`
	DisplayName string         `json:"displayName,omitempty"`
	Description string         `json:"description,omitempty"`
	Icon        string         `json:"icon,omitempty"`
	Category    string         `json:"category,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Priority    int            `json:"priority,omitempty"`
	Layout      map[string]any `json:"layout,omitempty"`
	Props       map[string]any `json:"props,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
	Placeholder bool           `json:"placeholder"`
	Strategy    string         `json:"strategy,omitempty"`
}

func toPluginResponse(p *registry.LoadedPlugin) pluginResponse {
	modules := make([]moduleResponse, 0, len(p.Modules))
	for _, m := range p.Modules {
		modules = append(modules, toModuleResponse(m))
	}
	return pluginResponse{
		ID:       p.ID,
		LoadID:   p.LoadID.String(),
		LoadedAt: p.LoadedAt,
		Modules:  modules,
	}
}

func toModuleResponse(m *registry.LoadedModule) moduleResponse {
	return moduleResponse{
		ID:          m.ID,
		Name:        m.Name,
		DisplayName: m.DisplayName,
		Description: m.Description,
		Icon:        m.Icon,
		Category:    m.Category,
		Tags:        m.Tags,
		Priority:    m.Priority,
		Layout:      m.Layout,
		Props:       m.Props,
		Config:      m.Config,
		Placeholder: m.Placeholder,
		Strategy:    m.Strategy,
	}
}

func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	plugins := s.registry.Plugins()
	out := make([]pluginResponse, 0, len(plugins))
	for _, p := range plugins {
		out = append(out, toPluginResponse(p))
	}
	s.writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) handlePlugin(w http.ResponseWriter, r *http.Request) {
	p, ok := s.registry.Plugin(r.PathValue("id"))
	if !ok {
		s.writeError(w, r, http.StatusNotFound, "plugin not found")
		return
	}
	s.writeJSON(w, r, http.StatusOK, toPluginResponse(p))
}

func (s *Server) handlePluginModule(w http.ResponseWriter, r *http.Request) {
	m, ok := s.registry.Module(r.PathValue("id"), r.PathValue("name"))
	if !ok {
		s.writeError(w, r, http.StatusNotFound, "module not found")
		return
	}
	s.writeJSON(w, r, http.StatusOK, toModuleResponse(m))
}

// handleModules lists modules, optionally narrowed by the q filter
// expression and/or a name glob.
func (s *Server) handleModules(w http.ResponseWriter, r *http.Request) {
	modules := s.registry.Modules()

	if expr := r.URL.Query().Get("q"); expr != "" {
		filtered, err := s.registry.Query(expr)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		modules = filtered
	}

	if pattern := r.URL.Query().Get("glob"); pattern != "" {
		matched, err := s.registry.FindModulesGlob(pattern)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		modules = intersect(modules, matched)
	}

	out := make([]moduleResponse, 0, len(modules))
	for _, m := range modules {
		out = append(out, toModuleResponse(m))
	}
	s.writeJSON(w, r, http.StatusOK, out)
}

// intersect keeps the modules of a that also appear in b, preserving
// a's order.
func intersect(a, b []*registry.LoadedModule) []*registry.LoadedModule {
	inB := make(map[*registry.LoadedModule]struct{}, len(b))
	for _, m := range b {
		inB[m] = struct{}{}
	}
	var out []*registry.LoadedModule
	for _, m := range a {
		if _, ok := inB[m]; ok {
			out = append(out, m)
		}
	}
	return out
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("api response write failed", "path", r.URL.Path, "error", err)
	}
	s.count(r, status)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.writeJSON(w, r, status, map[string]string{"error": msg})
}

func (s *Server) count(r *http.Request, status int) {
	if s.metrics == nil {
		return
	}
	s.metrics.RequestsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(status)).Inc()
}
