// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

package bundle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/oops"

	"github.com/helioshell/helioshell/internal/manifest"
)

// DefaultFetchTimeout bounds one bundle fetch.
const DefaultFetchTimeout = 30 * time.Second

// maxBundleBytes caps a bundle body.
const maxBundleBytes = 16 << 20

var (
	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "helioshell_bundle_fetch_duration_seconds",
		Help: "Time spent fetching plugin bundles",
	})
	fetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helioshell_bundle_fetch_failures_total",
		Help: "Total number of failed bundle fetches",
	})
)

// Document is the shared namespace bundles execute into. Implemented by
// runtime.Document; abstracted here so loader behavior is testable with
// a recording fake.
type Document interface {
	// Executed reports whether the bundle at url has already run.
	Executed(url string) bool

	// ExecuteOnce compiles and runs a bundle, exactly once per URL.
	ExecuteOnce(ctx context.Context, url, source string) error

	// Settle lets deferred registration side effects finish before
	// resolution proceeds.
	Settle(ctx context.Context)
}

// task is one in-flight load. Concurrent loads of the same URL share it.
type task struct {
	done chan struct{}
	err  error
}

// Loader fetches and executes plugin bundles.
//
// Idempotence is explicit state, not a side-effect query: an executed-URL
// check on the document plus a de-duplicating in-flight task map keyed by
// resolved URL. Failed loads evict their task so a retry can re-attempt;
// successful execution is permanent.
type Loader struct {
	resolver *Resolver
	doc      Document
	client   *http.Client
	cacheDir string
	logger   *slog.Logger

	mu       sync.Mutex
	inflight map[string]*task
}

// LoaderOption configures the Loader.
type LoaderOption func(*Loader)

// WithHTTPClient sets the HTTP client used for bundle fetches.
func WithHTTPClient(c *http.Client) LoaderOption {
	return func(l *Loader) {
		l.client = c
	}
}

// WithCacheDir enables write-through disk caching of fetched bundles.
// Cached copies are only served when a fetch fails, as an offline
// fallback; a reachable origin always wins.
func WithCacheDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.cacheDir = dir
	}
}

// WithLogger sets the logger for load diagnostics.
func WithLogger(lg *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = lg
	}
}

// NewLoader creates a bundle loader over the given document.
func NewLoader(resolver *Resolver, doc Document, opts ...LoaderOption) *Loader {
	l := &Loader{
		resolver: resolver,
		doc:      doc,
		client:   &http.Client{Timeout: DefaultFetchTimeout},
		logger:   slog.Default(),
		inflight: make(map[string]*task),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load ensures the descriptor's entry bundle has been fetched and
// executed. Concurrent calls for the same resolved URL coalesce onto one
// attempt; a URL that already executed resolves immediately.
func (l *Loader) Load(ctx context.Context, desc *manifest.PluginDescriptor) error {
	resolved, err := l.resolver.Resolve(desc.EntryBundleLocation, desc.BundleKey())
	if err != nil {
		return oops.In("bundle").Code("BUNDLE_LOAD_FAILURE").
			With("plugin", desc.ID).Wrap(err)
	}

	if l.doc.Executed(resolved) {
		return nil
	}

	l.mu.Lock()
	if t, ok := l.inflight[resolved]; ok {
		l.mu.Unlock()
		select {
		case <-t.done:
			return t.err
		case <-ctx.Done():
			return oops.In("bundle").Code("BUNDLE_LOAD_FAILURE").
				With("plugin", desc.ID).With("url", resolved).
				Wrap(ctx.Err())
		}
	}
	t := &task{done: make(chan struct{})}
	l.inflight[resolved] = t
	l.mu.Unlock()

	t.err = l.fetchAndExecute(ctx, resolved, desc.ID)
	close(t.done)

	// Evict regardless of outcome: the document's executed ledger
	// answers for successes, and failures must stay re-attemptable.
	l.mu.Lock()
	delete(l.inflight, resolved)
	l.mu.Unlock()

	return t.err
}

func (l *Loader) fetchAndExecute(ctx context.Context, url, pluginID string) error {
	source, err := l.fetch(ctx, url)
	if err != nil {
		fetchFailures.Inc()
		return oops.In("bundle").Code("BUNDLE_LOAD_FAILURE").
			With("plugin", pluginID).With("url", url).
			Hint("bundle fetch failed").Wrap(err)
	}

	if err := l.doc.ExecuteOnce(ctx, url, source); err != nil {
		return oops.In("bundle").Code("BUNDLE_LOAD_FAILURE").
			With("plugin", pluginID).With("url", url).Wrap(err)
	}

	// Let the bundle's deferred registration hooks run before the
	// caller proceeds to scope resolution.
	l.doc.Settle(ctx)

	l.logger.Info("bundle executed", "plugin", pluginID, "url", url)
	return nil
}

// fetch retrieves the bundle source, falling back to the disk cache when
// the origin is unreachable.
func (l *Loader) fetch(ctx context.Context, url string) (string, error) {
	start := time.Now()
	source, err := l.fetchRemote(ctx, url)
	fetchDuration.Observe(time.Since(start).Seconds())

	if err == nil {
		l.cacheWrite(url, source)
		return source, nil
	}

	if cached, ok := l.cacheRead(url); ok {
		l.logger.Warn("serving bundle from cache after fetch failure",
			"url", url, "error", err)
		return cached, nil
	}
	return "", err
}

func (l *Loader) fetchRemote(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", oops.In("bundle").With("url", url).Wrap(err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return "", oops.In("bundle").With("url", url).Wrap(err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", oops.In("bundle").With("url", url).
			With("status", resp.StatusCode).New("unexpected bundle status")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBundleBytes))
	if err != nil {
		return "", oops.In("bundle").With("url", url).Wrap(err)
	}
	return string(body), nil
}

func (l *Loader) cachePath(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(l.cacheDir, hex.EncodeToString(sum[:])+".lua")
}

func (l *Loader) cacheWrite(url, source string) {
	if l.cacheDir == "" {
		return
	}
	if err := os.MkdirAll(l.cacheDir, 0o700); err != nil {
		l.logger.Warn("bundle cache unavailable", "dir", l.cacheDir, "error", err)
		return
	}
	if err := os.WriteFile(l.cachePath(url), []byte(source), 0o600); err != nil {
		l.logger.Warn("bundle cache write failed", "url", url, "error", err)
	}
}

func (l *Loader) cacheRead(url string) (string, bool) {
	if l.cacheDir == "" {
		return "", false
	}
	data, err := os.ReadFile(l.cachePath(url))
	if err != nil {
		return "", false
	}
	return string(data), true
}
