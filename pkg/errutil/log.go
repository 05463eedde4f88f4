// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

// Package errutil provides helpers for logging and asserting structured errors.
package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs an error with structured context if it's an oops error.
// For oops errors, it extracts and logs the message, code, and context.
// For standard errors, it logs the error string.
func LogError(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, errAttrs(err)...)
}

// LogWarn logs an error at warning level with the same structured
// extraction as LogError. Used for degraded-but-tolerated conditions
// such as module resolution falling back to a placeholder.
func LogWarn(logger *slog.Logger, msg string, err error) {
	logger.Warn(msg, errAttrs(err)...)
}

func errAttrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err}
	}

	attrs := []any{
		"error", oopsErr.Error(),
	}
	if code := oopsErr.Code(); code != "" {
		attrs = append(attrs, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", ctx)
	}
	return attrs
}
