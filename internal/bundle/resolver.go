// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

// Package bundle fetches plugin entry bundles and executes them into the
// shared document, exactly once per resolved URL.
package bundle

import (
	"net/url"

	"github.com/samber/oops"
)

// DefaultPublicPath is the public per-plugin bundle path prefix.
const DefaultPublicPath = "/public/plugins"

// Resolver turns bundle locations from descriptors into fully-qualified
// URLs.
type Resolver struct {
	baseURL    string
	publicPath string
}

// NewResolver creates a resolver rooted at the given base URL.
func NewResolver(baseURL string) *Resolver {
	return &Resolver{
		baseURL:    baseURL,
		publicPath: DefaultPublicPath,
	}
}

// Resolve produces the fully-qualified URL for a bundle location.
//
// Absolute locations pass through untouched. A relative location with a
// bundle key routes through the public per-plugin path; the key is the
// descriptor's databaseId when present, so multi-tenant deployments can
// re-home bundles without re-issuing plugin ids. A relative location
// without a key joins the base URL directly.
func (r *Resolver) Resolve(location, bundleKey string) (string, error) {
	if location == "" {
		return "", oops.In("bundle").New("bundle location is empty")
	}

	if u, err := url.Parse(location); err == nil && u.IsAbs() {
		return location, nil
	}

	base, err := url.Parse(r.baseURL)
	if err != nil {
		return "", oops.In("bundle").With("base", r.baseURL).
			Hint("invalid base URL").Wrap(err)
	}

	if bundleKey != "" {
		return base.JoinPath(r.publicPath, bundleKey, location).String(), nil
	}
	return base.JoinPath(location).String(), nil
}
