// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

package resolve

import (
	"strings"
	"unicode"
)

// Bundles register under whatever casing convention their build tooling
// favored, which rarely matches the declared scope name. Each transform
// below is a pure function producing one candidate global key; they are
// tried in order and the first bound name wins.

// splitWords splits an identifier into lowercase words on separators
// (-, _, space, .) and on case boundaries ("WeatherPlugin" -> weather,
// plugin; "HTTPWidget" -> http, widget).
func splitWords(s string) []string {
	var words []string
	var cur []rune

	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = nil
		}
	}

	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == '-' || r == '_' || r == ' ' || r == '.':
			flush()
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				next := rune(0)
				if i+1 < len(runes) {
					next = runes[i+1]
				}
				if unicode.IsLower(prev) || unicode.IsDigit(prev) {
					flush()
				} else if unicode.IsUpper(prev) && unicode.IsLower(next) {
					// Acronym boundary: the last upper of a run
					// starts the next word (HTTPWidget -> http widget).
					flush()
				}
			}
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()

	return words
}

func capitalize(w string) string {
	if w == "" {
		return w
	}
	return strings.ToUpper(w[:1]) + w[1:]
}

func toCamel(s string) string {
	words := splitWords(s)
	if len(words) == 0 {
		return s
	}
	out := words[0]
	for _, w := range words[1:] {
		out += capitalize(w)
	}
	return out
}

func toPascal(s string) string {
	var out string
	for _, w := range splitWords(s) {
		out += capitalize(w)
	}
	if out == "" {
		return s
	}
	return out
}

func toSnake(s string) string {
	return strings.Join(splitWords(s), "_")
}

func toKebab(s string) string {
	return strings.Join(splitWords(s), "-")
}

func toUpperSnake(s string) string {
	return strings.ToUpper(toSnake(s))
}

// ScopeNameCandidates returns the ordered, deduplicated global names to
// try for a declared scope name. The declared name always comes first.
func ScopeNameCandidates(name string) []string {
	candidates := []string{
		name,
		toCamel(name),
		toPascal(name),
		toSnake(name),
		toKebab(name),
		strings.ToLower(name),
		toUpperSnake(name),
	}

	seen := make(map[string]bool, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// NormalizePluginID converts a plugin id to the conventional global key
// bundles use when they bypass the scope container and attach their
// modules straight to the global namespace.
func NormalizePluginID(id string) string {
	return toSnake(id)
}

// StripModulePrefix returns a module name without its "./" prefix.
func StripModulePrefix(name string) string {
	return strings.TrimPrefix(name, "./")
}

// ModuleKeyCandidates returns ordered candidate factory keys for a
// declared module name: as declared, "./"-prefixed, and prefix-stripped.
func ModuleKeyCandidates(name string) []string {
	stripped := StripModulePrefix(name)

	candidates := []string{name}
	if !strings.HasPrefix(name, "./") {
		candidates = append(candidates, "./"+name)
	}
	if stripped != name {
		candidates = append(candidates, stripped)
	}
	return candidates
}
