// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

// Package logging provides structured logging with OpenTelemetry trace
// context and load-session correlation.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"
)

// loadIDKey is the context key carrying the current load-session ULID.
type loadIDKey struct{}

// WithLoadID returns a context carrying a load-session identifier.
// Every log record emitted under this context includes it as load_id,
// so one plugin load can be followed across fetcher, loader, and resolver.
func WithLoadID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, loadIDKey{}, id)
}

// LoadID returns the load-session identifier from ctx, or "".
func LoadID(ctx context.Context) string {
	id, _ := ctx.Value(loadIDKey{}).(string)
	return id
}

// shellHandler wraps a slog.Handler to add service identity, trace
// context, and load-session correlation.
type shellHandler struct {
	handler slog.Handler
	service string
	version string
}

// Handle adds trace and load-session context to the log record.
func (h *shellHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(
		slog.String("service", h.service),
		slog.String("version", h.version),
	)

	if id := LoadID(ctx); id != "" {
		r.AddAttrs(slog.String("load_id", id))
	}

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		r.AddAttrs(slog.String("trace_id", spanCtx.TraceID().String()))
	}
	if spanCtx.HasSpanID() {
		r.AddAttrs(slog.String("span_id", spanCtx.SpanID().String()))
	}

	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.handler.Handle(ctx, r)
}

// Enabled returns true if the level is enabled.
func (h *shellHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// WithAttrs returns a new handler with the given attributes.
func (h *shellHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &shellHandler{
		handler: h.handler.WithAttrs(attrs),
		service: h.service,
		version: h.version,
	}
}

// WithGroup returns a new handler with the given group.
func (h *shellHandler) WithGroup(name string) slog.Handler {
	return &shellHandler{
		handler: h.handler.WithGroup(name),
		service: h.service,
		version: h.version,
	}
}

// Setup creates a configured slog.Logger.
// format: "json" or "text" (defaults to "json" if empty)
// If w is nil, writes to os.Stderr.
func Setup(service, version, format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	var baseHandler slog.Handler
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}

	if format == "text" {
		baseHandler = slog.NewTextHandler(w, opts)
	} else {
		baseHandler = slog.NewJSONHandler(w, opts)
	}

	handler := &shellHandler{
		handler: baseHandler,
		service: service,
		version: version,
	}

	return slog.New(handler)
}

// SetDefault sets up and configures the default logger.
func SetDefault(service, version, format string) {
	logger := Setup(service, version, format, nil)
	slog.SetDefault(logger)
}
