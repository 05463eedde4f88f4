// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

package manifest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/helioshell/helioshell/pkg/errutil"
)

// DefaultFetchTimeout bounds one catalogue request.
const DefaultFetchTimeout = 10 * time.Second

// maxCatalogueBytes caps the catalogue body so a misbehaving endpoint
// cannot exhaust memory.
const maxCatalogueBytes = 8 << 20

// Fetcher retrieves the plugin catalogue from the provisioning API.
//
// The catalogue endpoint returns a JSON object keyed by plugin id. Fetch
// flattens it into a slice preserving the key order of the source
// document, which is why the body is walked with a json.Decoder token
// stream instead of decoded into a map.
type Fetcher struct {
	endpoint    string
	client      *http.Client
	hostVersion string
	logger      *slog.Logger
}

// FetcherOption configures the Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient sets the HTTP client used for catalogue requests.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithHostVersion enables host-range compatibility warnings against the
// given host version.
func WithHostVersion(v string) FetcherOption {
	return func(f *Fetcher) {
		f.hostVersion = v
	}
}

// WithLogger sets the logger for fetch diagnostics.
func WithLogger(l *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = l
	}
}

// NewFetcher creates a catalogue fetcher for the given endpoint.
func NewFetcher(endpoint string, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultFetchTimeout},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch performs one catalogue request and returns the descriptors it
// contains, preserving catalogue order.
//
// Fetch never returns an error: a transport failure, non-2xx status, or
// malformed body degrades to an empty catalogue with a diagnostic, since
// "no plugins" is a valid outcome for the shell. Individual malformed
// descriptors are warned about and skipped so one bad entry does not
// block the rest.
func (f *Fetcher) Fetch(ctx context.Context) []PluginDescriptor {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		f.unavailable("building catalogue request failed", err)
		return nil
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		f.unavailable("catalogue request failed", err)
		return nil
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.unavailable("catalogue endpoint returned non-2xx status",
			oops.With("status", resp.StatusCode).New("unexpected status"))
		return nil
	}

	descriptors, err := decodeCatalogue(io.LimitReader(resp.Body, maxCatalogueBytes))
	if err != nil {
		f.unavailable("catalogue body is not a keyed object", err)
		return nil
	}

	valid := make([]PluginDescriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if err := d.Validate(); err != nil {
			errutil.LogWarn(f.logger, "skipping malformed descriptor", err)
			continue
		}
		f.warnIncompatible(&d)
		valid = append(valid, d)
	}

	f.logger.Info("fetched plugin catalogue",
		"endpoint", f.endpoint,
		"descriptors", len(valid),
		"skipped", len(descriptors)-len(valid))

	return valid
}

// decodeCatalogue walks the top-level object with a token stream so the
// returned slice keeps the iteration order of the source document.
func decodeCatalogue(r io.Reader) ([]PluginDescriptor, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, oops.In("manifest").Code("MANIFEST_UNAVAILABLE").
			Hint("empty or unreadable body").Wrap(err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, oops.In("manifest").Code("MANIFEST_UNAVAILABLE").
			With("token", tok).
			New("catalogue root must be a JSON object")
	}

	var out []PluginDescriptor
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, oops.In("manifest").Code("MANIFEST_UNAVAILABLE").
				Hint("truncated catalogue").Wrap(err)
		}
		key, _ := keyTok.(string)

		var d PluginDescriptor
		if err := dec.Decode(&d); err != nil {
			return nil, oops.In("manifest").Code("MANIFEST_UNAVAILABLE").
				With("entry", key).
				Hint("descriptor is not an object").Wrap(err)
		}
		if d.ID == "" {
			d.ID = key
		}
		out = append(out, d)
	}

	return out, nil
}

// warnIncompatible logs when a descriptor declares a host range the
// running host does not satisfy. Incompatibility never rejects the entry.
func (f *Fetcher) warnIncompatible(d *PluginDescriptor) {
	if f.hostVersion == "" || d.HostRange == "" {
		return
	}
	ok, err := d.CompatibleWithHost(f.hostVersion)
	if err != nil {
		errutil.LogWarn(f.logger, "host range check skipped", err)
		return
	}
	if !ok {
		f.logger.Warn("plugin declares incompatible host range",
			"plugin", d.ID,
			"hostRange", d.HostRange,
			"hostVersion", f.hostVersion)
	}
}

func (f *Fetcher) unavailable(msg string, err error) {
	errutil.LogError(f.logger, msg,
		oops.In("manifest").Code("MANIFEST_UNAVAILABLE").
			With("endpoint", f.endpoint).Wrap(err))
}
